// Copyright 2025 deepset GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"bufio"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/deepset-ai/deepset-cloud-sdk-go/api"
	"github.com/deepset-ai/deepset-cloud-sdk-go/service"
)

func main() {
	app := &cli.App{
		Name:  "deepset",
		Usage: "Upload and manage files on the deepset AI platform",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "warn",
			},
			&cli.StringFlag{
				Name:    "api-key",
				Usage:   "API key (overrides the environment)",
				EnvVars: []string{api.EnvAPIKey},
			},
			&cli.StringFlag{
				Name:    "api-url",
				Usage:   "API base URL",
				EnvVars: []string{api.EnvAPIURL},
			},
			&cli.StringFlag{
				Name:    "workspace",
				Aliases: []string{"w"},
				Usage:   "Workspace to operate on",
				EnvVars: []string{api.EnvWorkspace},
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "login",
				Usage:  "Store API credentials in ~/.deepset-cloud/.env",
				Action: loginCommand,
			},
			{
				Name:   "logout",
				Usage:  "Remove stored API credentials",
				Action: logoutCommand,
			},
			{
				Name:      "upload",
				Usage:     "Upload files or folders to a workspace",
				ArgsUsage: "<path> [<path>...]",
				Action:    uploadCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "write-mode",
						Usage: "What to do when a file name already exists (KEEP, OVERWRITE, FAIL)",
						Value: string(api.WriteModeKeep),
					},
					&cli.BoolFlag{
						Name:  "blocking",
						Usage: "Wait until all uploaded files are ingested",
						Value: true,
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "Deadline for the ingestion wait (0 disables it)",
						Value: service.DefaultTimeout,
					},
					&cli.BoolFlag{
						Name:  "show-progress",
						Usage: "Render a progress bar",
						Value: true,
					},
					&cli.BoolFlag{
						Name:    "recursive",
						Aliases: []string{"r"},
						Usage:   "Descend into subdirectories",
					},
					&cli.StringSliceFlag{
						Name:  "file-type",
						Usage: "Restrict the upload to the given extensions (repeatable, defaults to .txt and .pdf)",
					},
				},
			},
			{
				Name:   "download",
				Usage:  "Download files from a workspace",
				Action: downloadCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "file-dir",
						Usage: "Directory to download into",
						Value: ".",
					},
					&cli.StringFlag{
						Name:  "name",
						Usage: "Filter by file name",
					},
					&cli.StringFlag{
						Name:  "content",
						Usage: "Filter by file content",
					},
					&cli.StringFlag{
						Name:  "odata-filter",
						Usage: "OData filter on file metadata",
					},
					&cli.BoolFlag{
						Name:  "include-meta",
						Usage: "Download metadata sidecars as well",
						Value: true,
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Files per listing page",
						Value: 50,
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "Deadline for the whole download (0 disables it)",
					},
					&cli.BoolFlag{
						Name:  "show-progress",
						Usage: "Render a progress bar",
						Value: true,
					},
				},
			},
			{
				Name:   "list-files",
				Usage:  "List files in a workspace",
				Action: listFilesCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "name",
						Usage: "Filter by file name",
					},
					&cli.StringFlag{
						Name:  "content",
						Usage: "Filter by file content",
					},
					&cli.StringFlag{
						Name:  "odata-filter",
						Usage: "OData filter on file metadata",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Files per listing page",
						Value: 10,
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "Deadline for the listing (0 disables it)",
					},
				},
			},
			{
				Name:   "list-upload-sessions",
				Usage:  "List upload sessions in a workspace",
				Action: listSessionsCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "is-expired",
						Usage: "List expired sessions instead of active ones",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Sessions per page",
						Value: 10,
					},
					&cli.IntFlag{
						Name:  "page-number",
						Usage: "Page to fetch",
						Value: 1,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// buildService assembles a FilesService from the stored credentials and
// any command line overrides.
func buildService(c *cli.Context) (*service.FilesService, error) {
	var opts []api.ConfigOption
	if key := c.String("api-key"); key != "" {
		opts = append(opts, api.WithAPIKey(key))
	}
	if url := c.String("api-url"); url != "" {
		opts = append(opts, api.WithAPIURL(url))
	}
	if workspace := c.String("workspace"); workspace != "" {
		opts = append(opts, api.WithWorkspace(workspace))
	}
	return service.NewFromEnv(opts...)
}

// cliTimeout maps the flag convention (0 disables the deadline) onto the
// service convention (negative disables it).
func cliTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return service.NoTimeout
	}
	return d
}

func loginCommand(c *cli.Context) error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Fprint(os.Stderr, "Your API key: ")
	apiKey, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("reading API key: %w", err)
	}
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return fmt.Errorf("API key must not be empty")
	}

	fmt.Fprint(os.Stderr, "Your default workspace [default]: ")
	workspace, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("reading workspace: %w", err)
	}
	workspace = strings.TrimSpace(workspace)
	if workspace == "" {
		workspace = "default"
	}

	envFile := api.EnvFilePath()
	if err := os.MkdirAll(filepath.Dir(envFile), 0o700); err != nil {
		return err
	}
	err = godotenv.Write(map[string]string{
		api.EnvAPIKey:    apiKey,
		api.EnvAPIURL:    api.DefaultAPIURL,
		api.EnvWorkspace: workspace,
	}, envFile)
	if err != nil {
		return fmt.Errorf("writing %s: %w", envFile, err)
	}

	fmt.Fprintf(os.Stderr, "Credentials stored in %s\n", envFile)
	return nil
}

func logoutCommand(c *cli.Context) error {
	envFile := api.EnvFilePath()
	if err := os.Remove(envFile); err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintln(os.Stderr, "You are not logged in.")
			return nil
		}
		return err
	}
	fmt.Fprintf(os.Stderr, "Removed %s\n", envFile)
	return nil
}

func uploadCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("at least one path is required")
	}

	svc, err := buildService(c)
	if err != nil {
		return err
	}

	opts := service.DefaultUploadOptions()
	opts.WriteMode = api.WriteMode(strings.ToUpper(c.String("write-mode")))
	opts.Blocking = c.Bool("blocking")
	opts.Timeout = cliTimeout(c.Duration("timeout"))
	opts.ShowProgress = c.Bool("show-progress")
	opts.Recursive = c.Bool("recursive")
	if fileTypes := c.StringSlice("file-type"); len(fileTypes) > 0 {
		opts.FileTypes = fileTypes
	}

	summary, err := svc.Upload(c.Context, c.Args().Slice(), opts)
	if err != nil {
		return err
	}

	fmt.Printf("Uploaded %d of %d files.\n", summary.SuccessfulUploadCount, summary.TotalFiles)
	for _, failed := range summary.Failed {
		fmt.Printf("  failed: %s (%v)\n", failed.FileName, failed.Err)
	}
	if summary.FailedUploadCount > 0 {
		return fmt.Errorf("%d files failed to upload", summary.FailedUploadCount)
	}
	return nil
}

func downloadCommand(c *cli.Context) error {
	svc, err := buildService(c)
	if err != nil {
		return err
	}

	params := api.ListParams{
		Limit:   c.Int("batch-size"),
		Name:    c.String("name"),
		Content: c.String("content"),
		Filter:  c.String("odata-filter"),
	}
	downloaded, err := svc.Download(c.Context, params, service.DownloadOptions{
		Dir:          c.String("file-dir"),
		IncludeMeta:  c.Bool("include-meta"),
		Timeout:      cliTimeout(c.Duration("timeout")),
		ShowProgress: c.Bool("show-progress"),
	})
	if err != nil {
		return err
	}
	fmt.Printf("Downloaded %d files to %s.\n", downloaded, c.String("file-dir"))
	return nil
}

func listFilesCommand(c *cli.Context) error {
	svc, err := buildService(c)
	if err != nil {
		return err
	}

	params := api.ListParams{
		Limit:   c.Int("batch-size"),
		Name:    c.String("name"),
		Content: c.String("content"),
		Filter:  c.String("odata-filter"),
	}
	fmt.Printf("%-36s  %-25s  %10s  %s\n", "FILE ID", "CREATED AT", "SIZE", "NAME")
	return svc.ListAll(c.Context, params, cliTimeout(c.Duration("timeout")), func(page api.FileList) error {
		for _, file := range page.Data {
			fmt.Printf("%-36s  %-25s  %10d  %s\n",
				file.FileID, file.CreatedAt.Format(time.RFC3339), file.Size, file.Name)
		}
		return nil
	})
}

func listSessionsCommand(c *cli.Context) error {
	svc, err := buildService(c)
	if err != nil {
		return err
	}

	sessions, err := svc.ListUploadSessions(c.Context, c.Bool("is-expired"), c.Int("limit"), c.Int("page-number"))
	if err != nil {
		return err
	}

	fmt.Printf("%-36s  %-25s  %-25s  %-9s  %s\n", "SESSION ID", "CREATED AT", "EXPIRES AT", "MODE", "STATUS")
	for _, session := range sessions.Data {
		fmt.Printf("%-36s  %-25s  %-25s  %-9s  %s\n",
			session.SessionID,
			session.CreatedAt.Format(time.RFC3339),
			session.ExpiresAt.Format(time.RFC3339),
			session.WriteMode,
			session.Status)
	}
	fmt.Printf("Total: %d\n", sessions.Total)
	return nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
