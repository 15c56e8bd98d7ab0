package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
)

var envFile string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write VWO credentials to .env.local",
	Long: `Prompt for the VWO account id, API token and dashboard port and write
them to .env.local. Existing values in the file are kept unless replaced.

Example:
  vwop init
  vwop init --env-file .env`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&envFile, "env-file", ".env.local", "file to write")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	accountID, err := promptValue("VWO account ID", cfg.VWO.AccountID, false, validateAccountID)
	if err != nil {
		return err
	}
	token, err := promptValue("VWO API token", cfg.VWO.APIToken, true, validateNonEmpty)
	if err != nil {
		return err
	}
	portValue, err := promptValue("Dashboard port", strconv.Itoa(cfg.Server.Port), false, validatePort)
	if err != nil {
		return err
	}

	if err := writeEnvFile(envFile, map[string]string{
		"VWO_ACCOUNT_ID": accountID,
		"VWO_API_TOKEN":  token,
		"VWOP_PORT":      portValue,
	}); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Wrote %s\n", envFile)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Next:")
	fmt.Fprintln(out, "  vwop list           List campaigns")
	fmt.Fprintln(out, "  vwop experiments    Fetch and normalize running experiments")
	fmt.Fprintln(out, "  vwop serve          Start the dashboard")
	return nil
}

func promptValue(label, def string, mask bool, validate promptui.ValidateFunc) (string, error) {
	prompt := promptui.Prompt{
		Label:    label,
		Default:  def,
		Validate: validate,
	}
	if mask {
		prompt.Mask = '*'
	}

	value, err := prompt.Run()
	if err != nil {
		if err == promptui.ErrInterrupt {
			os.Exit(0)
		}
		return "", err
	}
	return value, nil
}

func validateNonEmpty(s string) error {
	if s == "" {
		return errors.New("value is required")
	}
	return nil
}

func validateAccountID(s string) error {
	if _, err := strconv.ParseUint(s, 10, 64); err != nil {
		return errors.New("account id must be numeric")
	}
	return nil
}

func validatePort(s string) error {
	p, err := strconv.Atoi(s)
	if err != nil || p <= 0 || p > 65535 {
		return errors.New("port must be between 1 and 65535")
	}
	return nil
}

// writeEnvFile merges values into a dotenv file, keeping unrelated keys.
func writeEnvFile(path string, values map[string]string) error {
	env := map[string]string{}
	if existing, err := godotenv.Read(path); err == nil {
		env = existing
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	for k, v := range values {
		env[k] = v
	}

	if err := godotenv.Write(env, path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	// credentials live here
	return os.Chmod(path, 0600)
}
