// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"

	"github.com/Thermoquad/webcontrol/internal/config"
	"github.com/Thermoquad/webcontrol/pkg/desk"
)

// EnvPassword holds the WebSocket bridge password
const EnvPassword = "WEBCONTROL_PASSWORD"

// Connection provides a common interface for reading/writing bytes from serial or WebSocket
type Connection interface {
	io.Reader
	io.Writer
	io.Closer
}

// SerialConnection wraps a serial port
type SerialConnection struct {
	port serial.Port
}

func (s *SerialConnection) Read(p []byte) (int, error) {
	n, err := s.port.Read(p)
	return n, serialErr(err)
}

func (s *SerialConnection) Write(p []byte) (int, error) {
	n, err := s.port.Write(p)
	return n, serialErr(err)
}

func (s *SerialConnection) Close() error {
	return s.port.Close()
}

// serialErr marks errors that mean the port is gone (closed or unplugged)
func serialErr(err error) error {
	if err == nil {
		return nil
	}
	var portErr *serial.PortError
	if errors.As(err, &portErr) && portErr.Code() == serial.PortClosed {
		return fmt.Errorf("%w: %v", desk.ErrLinkClosed, err)
	}
	if errors.Is(err, syscall.EIO) || errors.Is(err, syscall.ENXIO) || errors.Is(err, syscall.ENODEV) {
		return fmt.Errorf("%w: %v", desk.ErrLinkClosed, err)
	}
	return err
}

// ErrConnectionClosed is returned once a WebSocket connection has failed
var ErrConnectionClosed = fmt.Errorf("websocket connection closed: %w", desk.ErrLinkClosed)

// WebSocketConnection wraps a WebSocket connection as a byte stream.
// Each Write is sent as one binary message, so a frame is never split.
type WebSocketConnection struct {
	conn      *websocket.Conn
	buf       []byte
	bufOffset int
	closed    bool // set by the reader once the socket fails

	writeMu sync.Mutex // gorilla allows one concurrent writer
}

func (w *WebSocketConnection) Read(p []byte) (int, error) {
	// Return immediately if connection is known to be closed
	if w.closed {
		return 0, ErrConnectionClosed
	}

	// If we have buffered data, return it first
	if w.bufOffset < len(w.buf) {
		n := copy(p, w.buf[w.bufOffset:])
		w.bufOffset += n
		return n, nil
	}

	// Read next message from WebSocket (non-recursive loop to avoid stack overflow)
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			// Mark connection as closed to prevent further read attempts
			w.closed = true
			return 0, fmt.Errorf("%w: %v", ErrConnectionClosed, err)
		}

		// Text messages are bridge chatter, not desk bytes
		if messageType != websocket.BinaryMessage {
			continue
		}

		// Buffer the message and return what fits
		w.buf = data
		w.bufOffset = 0
		n := copy(p, w.buf)
		w.bufOffset = n
		return n, nil
	}
}

func (w *WebSocketConnection) Write(p []byte) (int, error) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	}
	return len(p), nil
}

func (w *WebSocketConnection) Close() error {
	return w.conn.Close()
}

// OpenSerialConnection opens a serial port connection
func OpenSerialConnection(portName string, baudRate int) (Connection, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	return &SerialConnection{port: port}, nil
}

// OpenWebSocketConnection opens a WebSocket connection with HTTP Basic auth
func OpenWebSocketConnection(ctx context.Context, wsURL, username, password string, skipSSLVerify bool) (Connection, error) {
	// Parse and validate URL
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	// Validate scheme
	switch u.Scheme {
	case "ws", "wss":
		// OK
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	// Create dialer with timeout
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	// Configure TLS for wss://
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	// Build HTTP headers with Basic auth
	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	// Connect
	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return &WebSocketConnection{conn: conn}, nil
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv(EnvPassword); pw != "" {
		return pw, nil
	}

	// Prompt user for password (hide input)
	fmt.Fprint(os.Stderr, "Password: ")

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// Dialer opens a fresh connection to one desk
type Dialer func(ctx context.Context) (Connection, string, error)

// NewDialer returns a Dialer for d. The bridge password, if needed, is
// read once here rather than on every reconnect.
func NewDialer(d config.DeskConfig) (Dialer, error) {
	switch {
	case d.URL != "":
		// WebSocket mode
		password := ""
		if d.Username != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, err
			}
		}
		return func(ctx context.Context) (Connection, string, error) {
			conn, err := OpenWebSocketConnection(ctx, d.URL, d.Username, password, d.NoSSLVerify)
			if err != nil {
				return nil, "", err
			}
			return conn, fmt.Sprintf("WebSocket: %s", d.URL), nil
		}, nil

	case d.Port != "":
		// Serial mode
		baud := d.Baud
		if baud == 0 {
			baud = config.DefaultBaudRate
		}
		return func(ctx context.Context) (Connection, string, error) {
			conn, err := OpenSerialConnection(d.Port, baud)
			if err != nil {
				return nil, "", err
			}
			return conn, fmt.Sprintf("Serial: %s @ %d baud", d.Port, baud), nil
		}, nil
	}

	return nil, fmt.Errorf("desk %q: either --port or --url must be specified", d.Name)
}

// OpenConnection opens a one-shot connection to d
func OpenConnection(ctx context.Context, d config.DeskConfig) (Connection, string, error) {
	dial, err := NewDialer(d)
	if err != nil {
		return nil, "", err
	}
	return dial(ctx)
}
