package commands

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"concertcal/internal/auth"
)

// HashPassword handles the hash-password subcommand: it prompts for a
// username and a masked password and prints the basic_auth block for
// config.yaml.
func HashPassword(args []string) error {
	fs := flag.NewFlagSet("hash-password", flag.ContinueOnError)
	insecureUnmask := fs.Bool("insecure-unmask-password", false, "Show password as plain text (INSECURE!)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: concertcal hash-password [OPTIONS]\n\n")
		fmt.Fprintf(os.Stderr, "Prints an argon2id basic_auth entry for config.yaml.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	reader := bufio.NewReader(os.Stdin)

	fmt.Fprint(os.Stderr, "Enter username: ")
	username, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read username: %w", err)
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return errors.New("username cannot be empty")
	}

	var password, confirm string
	if *insecureUnmask {
		fmt.Fprintln(os.Stderr, "WARNING: password will be visible on screen!")
		password = readLine(reader, "Enter password:   ")
		confirm = readLine(reader, "Confirm password: ")
	} else {
		password = readPasswordWithMask("Enter password:   ")
		confirm = readPasswordWithMask("Confirm password: ")
	}

	if password == "" {
		return errors.New("password cannot be empty")
	}
	if password != confirm {
		return errors.New("passwords do not match")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	fmt.Fprint(os.Stdout, BasicAuthSnippet(username, hash))
	return nil
}

// BasicAuthSnippet renders the config.yaml block for username and hash.
func BasicAuthSnippet(username, hash string) string {
	return fmt.Sprintf("basic_auth:\n  username: %q\n  password_hash: %q\n", username, hash)
}

func readLine(r *bufio.Reader, prompt string) string {
	fmt.Fprint(os.Stderr, prompt)
	line, _ := r.ReadString('\n')
	return strings.TrimRight(line, "\r\n")
}

// readPasswordWithMask reads a password in raw mode and echoes asterisks.
func readPasswordWithMask(prompt string) string {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(syscall.Stdin)

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		// Not a terminal (or raw mode unsupported): hidden input.
		password, _ := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		return string(password)
	}
	defer term.Restore(fd, oldState)

	var password []byte
	reader := bufio.NewReader(os.Stdin)
	for {
		char, _, err := reader.ReadRune()
		if err != nil {
			break
		}
		switch char {
		case '\n', '\r':
			fmt.Fprint(os.Stderr, "\r\n")
			return string(password)
		case 127, 8:
			if len(password) > 0 {
				password = password[:len(password)-1]
				fmt.Fprint(os.Stderr, "\b \b")
			}
		case 3: // Ctrl+C
			term.Restore(fd, oldState)
			fmt.Fprintln(os.Stderr)
			os.Exit(1)
		default:
			if char >= 32 && char <= 126 {
				password = append(password, byte(char))
				fmt.Fprint(os.Stderr, "*")
			}
		}
	}

	fmt.Fprint(os.Stderr, "\r\n")
	return string(password)
}
