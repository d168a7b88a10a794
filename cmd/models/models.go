package models

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/livecaptions/livecaptions/internal/conf"
	"github.com/livecaptions/livecaptions/internal/recognizer"
)

// Command lists the configured speech models and optionally loads each one.
func Command(settings *conf.Settings) *cobra.Command {
	var load bool

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List configured speech models",
		Long:  "List the speech model directories from the configuration. With --load every model is loaded once to verify it.",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			current := conf.CanonicalLanguage(settings.Recognizer.Language)

			failed := 0
			fmt.Fprintf(out, "%-12s  %-8s  %s\n", "Language", "Status", "Path")
			for _, lang := range settings.Languages() {
				path, _ := settings.ModelPath(lang)
				status := check(path, lang, load)
				if status == "failed" || status == "missing" {
					failed++
				}
				name := lang
				if lang == current {
					name += " *"
				}
				fmt.Fprintf(out, "%-12s  %-8s  %s\n", name, status, path)
			}

			if failed > 0 {
				return fmt.Errorf("%d speech model(s) unusable", failed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&load, "load", false, "Load each model to verify it")

	return cmd
}

func check(path, language string, load bool) string {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return "missing"
	}
	if !load {
		return "found"
	}

	model, err := recognizer.LoadModel(path, language)
	if err != nil {
		return "failed"
	}
	model.Close()
	return "ok"
}
