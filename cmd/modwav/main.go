// Converts MOD and S3M songs to WAVE files

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"golang.org/x/sync/errgroup"

	"github.com/chriskillpack/modrender"
	"github.com/chriskillpack/modrender/cmd/internal/config"
	"github.com/chriskillpack/modrender/wav"
)

var (
	white   = color.New(color.FgWhite).SprintfFunc()
	cyan    = color.New(color.FgCyan).SprintfFunc()
	magenta = color.New(color.FgMagenta).SprintfFunc()
	yellow  = color.New(color.FgYellow).SprintfFunc()
	green   = color.New(color.FgGreen).SprintfFunc()
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("modwav: ")

	opts, err := config.Parse("modwav", os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		log.Fatal(err)
	}
	if opts.NoColor {
		color.NoColor = true
	}

	// Listen for SIGINT to allow a clean exit, the output is closed and valid
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if opts.OutDir == "" {
		if len(opts.Args) != 2 {
			log.Fatal("usage: modwav [flags] <module file> <.wav output file>")
		}
		err = convert(ctx, opts.Args[0], opts.Args[1], opts.Render, os.Stdout)
	} else {
		if len(opts.Args) == 0 {
			log.Fatal("Missing song filename")
		}
		err = convertAll(ctx, opts)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func loadSong(songFName string) (*modrender.Song, error) {
	songF, err := os.ReadFile(songFName)
	if err != nil {
		return nil, err
	}
	song, err := modrender.Load(songF)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", songFName, err)
	}
	return song, nil
}

// convert renders a single song, printing a status line every tick.
func convert(ctx context.Context, songFName, wavFName string, cfg modrender.Config, out io.Writer) error {
	song, err := loadSong(songFName)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "File:   %s\n", white("%s", songFName))
	fmt.Fprintf(out, "Title:  %s\n", cyan("%s", song.Title))
	fmt.Fprintf(out, "Format: %s\n", magenta("%s", song.Format))

	var last modrender.Progress
	err = wav.RenderFile(ctx, song, cfg, wavFName, func(p modrender.Progress) {
		// Only redraw when the display changes
		if p.Order == last.Order && p.Row == last.Row && p.Elapsed/time.Second == last.Elapsed/time.Second {
			return
		}
		last = p
		fmt.Fprintf(out, "\r%s", status(p))
	})
	fmt.Fprintln(out)
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(out, yellow("interrupted, %s is truncated", wavFName))
		return nil
	}
	return err
}

// status formats progress as "pat:<order>/<orders> pos:<row> time:<m:ss>",
// the row in lower case hex.
func status(p modrender.Progress) string {
	secs := int(p.Elapsed / time.Second)
	return fmt.Sprintf("pat:%s pos:%s time:%s",
		yellow("%d/%d", p.Order, p.Orders),
		cyan("%2.2x", p.Row),
		green("%d:%02d", secs/60, secs%60))
}

// convertAll renders every input song into opts.OutDir, opts.Jobs at a time.
// The first failure cancels the renders still running.
func convertAll(ctx context.Context, opts *config.Options) error {
	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Jobs)

	var mu sync.Mutex // serializes console output
	for _, songFName := range opts.Args {
		g.Go(func() error {
			base := strings.TrimSuffix(filepath.Base(songFName), filepath.Ext(songFName))
			wavFName := filepath.Join(opts.OutDir, base+".wav")

			song, err := loadSong(songFName)
			if err != nil {
				return err
			}

			start := time.Now()
			var last modrender.Progress
			err = wav.RenderFile(ctx, song, opts.Render, wavFName, func(p modrender.Progress) { last = p })
			if err != nil {
				return fmt.Errorf("%s: %w", songFName, err)
			}

			mu.Lock()
			defer mu.Unlock()
			fmt.Printf("%s -> %s (%s, %s song time, took %s)\n",
				white("%s", songFName), cyan("%s", wavFName), magenta("%s", song.Format),
				green("%s", last.Elapsed.Round(time.Second)), time.Since(start).Round(time.Millisecond))
			return nil
		})
	}
	return g.Wait()
}
