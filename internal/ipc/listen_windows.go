//go:build windows

package ipc

import (
	"fmt"
	"net"

	"github.com/Microsoft/go-winio"
	"golang.org/x/sys/windows"
)

// Listen creates the daemon's named pipe listener, restricted to the user
// who started the daemon. If the pipe is already owned by another process
// the error surfaces here.
func Listen(pipeName string) (net.Listener, error) {
	sd, err := ownerOnlyDescriptor()
	if err != nil {
		return nil, err
	}

	cfg := &winio.PipeConfig{
		SecurityDescriptor: sd,
		// Byte stream; frames are newline-delimited.
		MessageMode:      false,
		InputBufferSize:  65536,
		OutputBufferSize: 65536,
	}

	listener, err := winio.ListenPipe(pipeName, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s (is another daemon running?): %w", pipeName, err)
	}
	return listener, nil
}

// ownerOnlyDescriptor builds an SDDL string granting pipe access only to
// the current user.
func ownerOnlyDescriptor() (string, error) {
	token, err := windows.OpenCurrentProcessToken()
	if err != nil {
		return "", fmt.Errorf("failed to open process token: %w", err)
	}
	defer token.Close()

	user, err := token.GetTokenUser()
	if err != nil {
		return "", fmt.Errorf("failed to resolve current user: %w", err)
	}

	return fmt.Sprintf("D:P(A;;GA;;;%s)", user.User.Sid.String()), nil
}

// Cleanup is a no-op on Windows; the pipe vanishes with its last handle.
func Cleanup(string) {}
