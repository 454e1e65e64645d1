// authgatectl es la herramienta de operación: chequear salud del API y
// ejecutar vinculaciones a mano.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	baseURL   string
	secretKey string
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "authgatectl",
		Short:         "operación del servicio authgate",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&baseURL, "url", envOr("AUTHGATE_URL", "http://127.0.0.1:8586"), "base URL del API")

	health := &cobra.Command{
		Use:   "health",
		Short: "chequea /readyz",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, status, err := get("/readyz", nil)
			if err != nil {
				return err
			}
			fmt.Println(string(body))
			if status != http.StatusOK {
				return fmt.Errorf("not ready (HTTP %d)", status)
			}
			return nil
		},
	}

	link := &cobra.Command{
		Use:   "link <code> <discord-id>",
		Short: "vincula un discord id usando un código de un solo uso",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secretKey == "" {
				secretKey = os.Getenv("AUTHGATE_SECRET_KEY")
			}
			if secretKey == "" {
				return fmt.Errorf("falta --secret (o AUTHGATE_SECRET_KEY)")
			}
			body, status, err := get("/link", url.Values{
				"secret_key": {secretKey},
				"code":       {args[0]},
				"discord_id": {args[1]},
			})
			if err != nil {
				return err
			}

			var out struct {
				Success           bool   `json:"success"`
				Message           string `json:"message"`
				MinecraftUsername string `json:"minecraft_username"`
			}
			if err := json.Unmarshal(body, &out); err != nil {
				return fmt.Errorf("respuesta inválida (HTTP %d): %s", status, body)
			}
			if !out.Success {
				return fmt.Errorf("%s (HTTP %d)", out.Message, status)
			}
			fmt.Printf("vinculado: %s\n", out.MinecraftUsername)
			return nil
		},
	}
	link.Flags().StringVar(&secretKey, "secret", "", "secret key del API")

	root.AddCommand(health, link)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func get(path string, q url.Values) ([]byte, int, error) {
	u := baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(u)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}
