// Command chatclient is the terminal chat client.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"chatrelay/internal/client"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		host = flag.String("host", "127.0.0.1", "relay address")
		port = flag.Int("port", 9000, "relay port")
	)
	flag.Parse()

	stdin := bufio.NewReader(os.Stdin)
	username, err := prompt(stdin, "Username: ")
	if err != nil {
		return err
	}
	password, err := prompt(stdin, "Password: ")
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", *host, *port)
	c, err := client.Dial(addr, zap.NewNop())
	if err != nil {
		return err
	}
	defer c.Close()
	fmt.Printf("Connected to %s\n", addr)

	greeting, err := c.Login(context.Background(), username, password)
	if err != nil {
		return err
	}
	fmt.Printf("[Server]: %s\n", greeting.Message)

	ui, err := client.NewUI(c)
	if err != nil {
		return fmt.Errorf("start terminal UI: %w", err)
	}
	return ui.Run()
}

func prompt(in *bufio.Reader, label string) (string, error) {
	fmt.Print(label)
	line, err := in.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
