package meta

import (
	"time"

	"wikivault/pkg/types"

	"gorm.io/datatypes"
)

// Ref 存储分支指针 (例如 "refs/heads/main")
type Ref struct {
	Name string `gorm:"primaryKey;type:varchar(255)"`

	CommitHash types.Hash `gorm:"type:char(64);not null"`

	// Version 用于乐观锁并发控制 (CAS)，每次更新 +1
	Version int64 `gorm:"default:1"`

	UpdatedAt time.Time
}

// CommitModel 是 core.Commit 在关系型数据库中的投影
// 对象图才是真相，这张表只服务于 "最近修改" 之类的查询
type CommitModel struct {
	Hash types.Hash `gorm:"primaryKey;type:char(64)"`

	AuthorName  string `gorm:"index;type:varchar(100)"`
	AuthorEmail string `gorm:"type:varchar(255)"`
	Message     string `gorm:"type:text"`
	Timestamp   int64  `gorm:"index"`

	TreeHash types.Hash `gorm:"type:char(64);not null"`
	Parent   types.Hash `gorm:"type:char(64)"`

	// Titles 是这次提交改动的文章标题列表 ["Home", "guides/setup"]
	Titles datatypes.JSON

	CreatedAt time.Time
}

func (CommitModel) TableName() string {
	return "commits"
}

func (c *CommitModel) Time() time.Time { return time.Unix(c.Timestamp, 0) }
