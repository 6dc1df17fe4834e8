package main

import (
	"fmt"
	"os"

	"meetscribe/internal/capture"
	"meetscribe/internal/recorder"
)

func main() {
	cfg, err := recorder.LoadConfig(os.Getenv("MEETSCRIBE_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	store, err := capture.Open(cfg.StorePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open local store: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = store.Close()
	}()

	deps := &recorder.Dependencies{
		Store:    store,
		Uploader: recorder.NewUploader(store, recorder.NewClient(cfg.APIBaseURL), cfg),
		Config:   cfg,
	}

	if err := recorder.NewRootCmd(deps).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
