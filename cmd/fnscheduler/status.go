package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/spicaengine/fnscheduler/internal/models"
	"github.com/spicaengine/fnscheduler/internal/server"
	"github.com/spicaengine/fnscheduler/internal/server/middlewares"
)

const statusTokenTTL = time.Minute

func NewStatusCommand() *cobra.Command {
	var (
		addr       string
		secretFile string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the pool status of a running scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			st, raw, err := fetchStatus(ctx, addr, secretFile)
			if err != nil {
				return err
			}
			if asJSON {
				_, err := cmd.OutOrStdout().Write(append(raw, '\n'))
				return err
			}
			printStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&addr, "address", "http://127.0.0.1:8080", "ops API base URL")
	f.StringVar(&secretFile, "jwt-secret-file", "", "sign a short-lived token with this secret")
	f.BoolVar(&asJSON, "json", false, "print the raw JSON document")
	return cmd
}

func fetchStatus(ctx context.Context, addr, secretFile string) (models.Status, []byte, error) {
	var st models.Status

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr+"/api/v1/status", nil)
	if err != nil {
		return st, nil, err
	}
	if secretFile != "" {
		secret, err := server.ReadSecret(secretFile)
		if err != nil {
			return st, nil, err
		}
		token, err := middlewares.SignToken(secret, "fnscheduler-cli", statusTokenTTL)
		if err != nil {
			return st, nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return st, nil, fmt.Errorf("failed to reach scheduler: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return st, nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return st, nil, fmt.Errorf("scheduler answered %d: %s", resp.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, &st); err != nil {
		return st, nil, fmt.Errorf("failed to decode status: %w", err)
	}
	return st, raw, nil
}

func printStatus(w io.Writer, st models.Status) {
	label := color.New(color.Bold).SprintFunc()
	busy := color.New(color.FgYellow).SprintFunc()
	idle := color.New(color.FgGreen).SprintFunc()

	queue := idle(st.QueueSize)
	if st.QueueSize > 0 {
		queue = color.RedString("%d", st.QueueSize)
	}

	_, _ = fmt.Fprintf(w, "%s %d (%s activated)\n", label("workers:"), st.Total, idle(st.Activated))
	_, _ = fmt.Fprintf(w, "  fresh    %s\n", idle(st.Fresh))
	_, _ = fmt.Fprintf(w, "  busy     %s\n", busy(st.Busy))
	_, _ = fmt.Fprintf(w, "  targeted %s\n", busy(st.Targeted))
	_, _ = fmt.Fprintf(w, "%s %s\n", label("queue:"), queue)
	_, _ = fmt.Fprintf(w, "%s %.2fms\n", label("avg response:"), st.AverageResponseTime)
}
