package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stylewatch/stylewatch/internal/config"
)

var (
	authPassword  string
	registerEmail string
)

var loginCmd = &cobra.Command{
	Use:   "login [username]",
	Short: "Log in and save the bearer token",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogin,
}

var registerCmd = &cobra.Command{
	Use:   "register [username]",
	Short: "Create an account",
	Args:  cobra.ExactArgs(1),
	RunE:  runRegister,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the saved bearer token",
	RunE:  runLogout,
}

func init() {
	loginCmd.Flags().StringVarP(&authPassword, "password", "p", "", "Password (prompts when omitted)")
	registerCmd.Flags().StringVarP(&authPassword, "password", "p", "", "Password (prompts when omitted)")
	registerCmd.Flags().StringVar(&registerEmail, "email", "", "Email address")
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(logoutCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	password, err := readPassword()
	if err != nil {
		return err
	}
	token, err := app.API.Login(ctx, args[0], password)
	if err != nil {
		return err
	}
	if err := app.Config.SaveToken(token); err != nil {
		return err
	}
	fmt.Printf("Logged in as %s\n", args[0])
	return nil
}

func runRegister(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	password, err := readPassword()
	if err != nil {
		return err
	}
	if err := app.API.Register(ctx, args[0], password, registerEmail); err != nil {
		return err
	}
	fmt.Printf("Account created. Log in with: stylewatch login %s\n", args[0])
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.ClearToken(); err != nil {
		return err
	}
	fmt.Println("Logged out.")
	return nil
}

// readPassword returns the --password flag value, or prompts for one.
func readPassword() (string, error) {
	if authPassword != "" {
		return authPassword, nil
	}
	fmt.Fprint(os.Stderr, "Password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading password: %w", err)
	}
	password := strings.TrimSpace(line)
	if password == "" {
		return "", fmt.Errorf("password must not be empty")
	}
	return password, nil
}
