package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"shelfscan/internal/apiclient"
	"shelfscan/internal/assets"
	"shelfscan/internal/config"
	"shelfscan/internal/controller"
	"shelfscan/internal/entity"
	"shelfscan/internal/poller"
	"shelfscan/internal/store"
)

const usageText = `Usage: shelfscan <command> [flags]

Commands:
  submit   -image <path> [-planogram <id>] [-watch]   upload a shelf photo
  watch    [-planogram <id>]                          follow all in-flight jobs
  list     [-planogram <id>]                          list jobs on the server
  status   -job <id>                                  one-shot status check
  results  -job <id>                                  print a finished job's result
  delete   -job <id>                                  delete a job
  fetch    -job <id> -kind <k> -file <name> -out <p>  download a job artifact
  config   [-data-host <url>] [-jobs-host <url>] [-reset]   manage API hosts
`

func main() {
	// .env is optional; env vars may be set directly
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	}

	logger := newLogger(envOr("APP_ENV", "production"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1], os.Args[2:], logger); err != nil {
		fmt.Fprintf(os.Stderr, "shelfscan %s failed: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, args []string, logger zerolog.Logger) error {
	settingsDir := os.Getenv("SHELFSCAN_CONFIG_DIR")
	if settingsDir == "" {
		var err error
		settingsDir, err = config.Dir()
		if err != nil {
			return err
		}
	}
	settings, err := config.Load(settingsDir)
	if err != nil {
		return err
	}

	if command == "config" {
		return runConfig(settings, args)
	}

	api, err := apiclient.New(apiclient.Options{
		JobsBaseURL: settings.JobsHost,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	jobs := store.New()
	scheduler := poller.NewScheduler(poller.DefaultInterval, logger)
	ctl := controller.New(api, jobs, scheduler, logger)
	defer ctl.Close()

	switch command {
	case "submit":
		return runSubmit(ctx, ctl, jobs, settingsDir, args)
	case "watch":
		return runWatch(ctx, ctl, jobs, args)
	case "list":
		return runList(ctx, api, args)
	case "status":
		return runStatus(ctx, api, args)
	case "results":
		return runResults(ctx, api, args)
	case "delete":
		return runDelete(ctx, ctl, args)
	case "fetch":
		return runFetch(ctx, api, logger, args)
	default:
		fmt.Fprint(os.Stderr, usageText)
		return fmt.Errorf("unknown command %q", command)
	}
}

func runSubmit(ctx context.Context, ctl *controller.Controller, jobs *store.Store, settingsDir string, args []string) error {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	imagePath := fs.String("image", "", "path to the shelf photo")
	planogramID := fs.String("planogram", "", "planogram id to scope the job to")
	watch := fs.Bool("watch", false, "follow the job until it finishes")
	fs.Parse(args)

	if *imagePath == "" {
		return fmt.Errorf("submit: -image is required")
	}
	data, err := os.ReadFile(*imagePath)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	// the local copy the job falls back to when the server's stored original
	// is unreachable; saved before submission since the id is server-assigned
	localPath, err := assets.SavePreview(filepath.Join(settingsDir, "previews"), uuid.New().String(), data)
	if err != nil {
		return err
	}

	jobID, err := ctl.SubmitNewJob(ctx, bytes.NewReader(data), filepath.Base(*imagePath), localPath, *planogramID)
	if err != nil {
		return err
	}
	fmt.Printf("submitted job %s (local copy: %s)\n", jobID, localPath)

	if !*watch {
		return nil
	}
	return followUntilDone(ctx, jobs, jobID)
}

func runWatch(ctx context.Context, ctl *controller.Controller, jobs *store.Store, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	planogramID := fs.String("planogram", "", "planogram id to scope the listing to")
	fs.Parse(args)

	if err := ctl.Reconcile(ctx, *planogramID); err != nil {
		return err
	}
	return followUntilDone(ctx, jobs, "")
}

// followUntilDone subscribes to store changes and prints each transition until
// the tracked job (or, with an empty id, every tracked job) is terminal.
func followUntilDone(ctx context.Context, jobs *store.Store, jobID string) error {
	changed := make(chan struct{}, 1)
	unsubscribe := jobs.Subscribe(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	last := map[string]string{}
	for {
		followed, done := 0, 0
		for _, j := range jobs.List() {
			if jobID != "" && j.JobID != jobID {
				continue
			}
			followed++
			line := fmt.Sprintf("%s %s", j.Status, j.Stage)
			if last[j.JobID] != line {
				last[j.JobID] = line
				printJobLine(j)
			}
			if j.Status.Terminal() {
				done++
			}
		}
		if followed == 0 || followed == done {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

func printJobLine(j entity.Job) {
	switch {
	case j.Status == entity.StatusSucceeded && j.Result != nil:
		objects := 0
		if len(j.Result.Images) > 0 {
			objects = len(j.Result.Images[0].Objects)
		}
		fmt.Printf("%-36s  %-9s  %d objects detected\n", j.JobID, j.Status, objects)
	case j.Stage != "":
		fmt.Printf("%-36s  %-9s  stage=%s\n", j.JobID, j.Status, j.Stage)
	default:
		fmt.Printf("%-36s  %-9s\n", j.JobID, j.Status)
	}
}

func runList(ctx context.Context, api *apiclient.Client, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	planogramID := fs.String("planogram", "", "planogram id to scope the listing to")
	fs.Parse(args)

	jobs, err := api.ListJobs(ctx, *planogramID)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Println("no jobs")
		return nil
	}
	for _, j := range jobs {
		printJobLine(j)
	}
	return nil
}

func runStatus(ctx context.Context, api *apiclient.Client, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	jobID := fs.String("job", "", "job id")
	fs.Parse(args)
	if *jobID == "" {
		return fmt.Errorf("status: -job is required")
	}

	st, err := api.GetJobStatus(ctx, *jobID)
	if err != nil {
		return err
	}
	fmt.Printf("job %s: %s", st.JobID, st.Status)
	if st.Stage != "" {
		fmt.Printf(" (stage %s)", st.Stage)
	}
	if st.UpdatedAt != "" {
		fmt.Printf(" updated %s", st.UpdatedAt)
	}
	fmt.Println()
	return nil
}

func runResults(ctx context.Context, api *apiclient.Client, args []string) error {
	fs := flag.NewFlagSet("results", flag.ExitOnError)
	jobID := fs.String("job", "", "job id")
	fs.Parse(args)
	if *jobID == "" {
		return fmt.Errorf("results: -job is required")
	}

	result, err := api.GetJobResults(ctx, *jobID)
	if err != nil {
		return err
	}
	printResult(result)
	return nil
}

func printResult(result *entity.JobResult) {
	fmt.Printf("job %s: %s, %d image(s)\n", result.JobID, result.Status, result.TotalImages)
	for i, img := range result.Images {
		fmt.Printf("image %d: %d objects\n", i+1, len(img.Objects))
		for _, obj := range img.Objects {
			fmt.Printf("  %-12s  conf=%.2f  pred=%s (%.2f)\n", obj.Label, obj.Confidence, obj.PredLabel, obj.PredConfidence)
		}
		if img.Shelves != nil {
			fmt.Printf("shelves: %d (%d known / %d unknown)\n",
				len(img.Shelves.Shelves), img.Shelves.TotalKnown, img.Shelves.TotalUnknown)
		}
		if img.Compliance != nil {
			fmt.Printf("compliance: %.0f%% (%d of %d expected)\n",
				img.Compliance.MatchPercent, img.Compliance.TotalMatched, img.Compliance.TotalExpected)
		}
	}
}

func runDelete(ctx context.Context, ctl *controller.Controller, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	jobID := fs.String("job", "", "job id")
	fs.Parse(args)
	if *jobID == "" {
		return fmt.Errorf("delete: -job is required")
	}

	if err := ctl.DeleteJob(ctx, *jobID); err != nil {
		return err
	}
	fmt.Printf("deleted job %s\n", *jobID)
	return nil
}

func runFetch(ctx context.Context, api *apiclient.Client, logger zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	jobID := fs.String("job", "", "job id")
	kind := fs.String("kind", "annotated", "artifact kind: input, annotated or crops")
	file := fs.String("file", "", "artifact file name")
	out := fs.String("out", "", "output path (defaults to the artifact name)")
	local := fs.String("local", "", "local image path to fall back to")
	fs.Parse(args)
	if *jobID == "" || *file == "" {
		return fmt.Errorf("fetch: -job and -file are required")
	}

	resolver := assets.NewResolver(api, logger)
	job := entity.Job{JobID: *jobID, LocalImagePath: *local}
	data, tier, err := resolver.Open(ctx, job, apiclient.FileKind(*kind), *file)
	if err != nil {
		return err
	}

	dest := *out
	if dest == "" {
		dest = *file
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", dest, err)
	}
	fmt.Printf("saved %s (%d bytes, from %s)\n", dest, len(data), tier)
	return nil
}

func runConfig(settings *config.Settings, args []string) error {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	dataHost := fs.String("data-host", "", "auth/data API host")
	jobsHost := fs.String("jobs-host", "", "job API host")
	reset := fs.Bool("reset", false, "restore default hosts")
	fs.Parse(args)

	switch {
	case *reset:
		if err := settings.Reset(); err != nil {
			return err
		}
		fmt.Println("hosts reset to defaults")
	case *dataHost != "" || *jobsHost != "":
		if err := settings.Set(*dataHost, *jobsHost); err != nil {
			return err
		}
		fmt.Println("hosts saved")
	}

	fmt.Printf("data host: %s\n", settings.DataHost)
	fmt.Printf("jobs host: %s\n", settings.JobsHost)
	if settings.Custom() {
		fmt.Println("(custom override in effect)")
	}
	return nil
}

func newLogger(appEnv string) zerolog.Logger {
	level := zerolog.InfoLevel
	if appEnv == "development" {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	if appEnv == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return logger
}

func envOr(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}
