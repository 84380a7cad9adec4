package commands

import (
	"context"
	"fmt"
	"os"

	"wikivault/pkg/ipc"
	"wikivault/pkg/refs"

	"github.com/spf13/cobra"
)

var hookSocket string

var hookCmd = &cobra.Command{
	Use:    "hook",
	Short:  "post-receive hook: notify the running server about a push",
	Long:   `Reads "<old> <new> <ref>" lines on stdin and, for the main branch, sends one notification per line to the server's Unix socket.`,
	Args:   cobra.NoArgs,
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		socket := hookSocket
		if socket == "" {
			socket = Cfg.IPC.Socket
		}
		return notifyServer(cmd.Context(), socket)
	},
}

func notifyServer(ctx context.Context, socket string) error {
	res, err := ipc.RunHook(ctx, os.Stdin, socket, refs.MainRef, Cfg.IPC.Timeout)
	for _, u := range res.Sent {
		fmt.Printf("🔔 Notified server: %s -> %s\n", u.ParentRevision.Short(), u.NewRevision.Short())
	}
	return err
}

func init() {
	hookCmd.Flags().StringVar(&hookSocket, "socket", "", "server socket (default is ipc.socket)")
	rootCmd.AddCommand(hookCmd)
}
