// Package config builds render settings for the commands from an optional
// YAML file and command line flags. Flags win over the file.
package config

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/chriskillpack/modrender"
	"github.com/chriskillpack/modrender/internal/comb"
)

// File is the layout of a YAML config file. Missing keys keep their default.
//
//	hz: 48000
//	bits: 24
//	reverb: hall
type File struct {
	Hz        *int    `yaml:"hz"`
	Bits      *int    `yaml:"bits"`
	Mono      *bool   `yaml:"mono"`
	Interp    *string `yaml:"interp"`
	Boost     *int    `yaml:"boost"`
	Mute      *uint   `yaml:"mute"`
	Loops     *int    `yaml:"loops"`
	MaxOrders *int    `yaml:"maxorders"`
	Start     *int    `yaml:"start"`
	Reverb    *string `yaml:"reverb"`
	Jobs      *int    `yaml:"jobs"`
}

// Options are the parsed settings of a command.
type Options struct {
	Render  modrender.Config
	Jobs    int    // number of files rendered in parallel
	OutDir  string // batch mode output directory
	NoColor bool
	Args    []string // positional arguments
}

// LoadFile reads a YAML config file. Unknown keys are an error.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &f, nil
}

// apply copies every key present in f onto o.
func (f *File) apply(o *Options) error {
	c := &o.Render
	if f.Hz != nil {
		c.SampleRate = *f.Hz
	}
	if f.Bits != nil {
		c.BitDepth = *f.Bits
	}
	if f.Mono != nil {
		c.Channels = channels(*f.Mono)
	}
	if f.Interp != nil {
		interp, err := modrender.ParseInterpolation(*f.Interp)
		if err != nil {
			return err
		}
		c.Interpolation = interp
	}
	if f.Boost != nil {
		c.VolumeBoost = *f.Boost
	}
	if f.Mute != nil {
		c.Mute = *f.Mute
	}
	if f.Loops != nil {
		c.Loops = *f.Loops
	}
	if f.MaxOrders != nil {
		c.MaxOrders = *f.MaxOrders
	}
	if f.Start != nil {
		c.StartOrder = *f.Start
	}
	if f.Reverb != nil {
		c.Reverb = *f.Reverb
	}
	if f.Jobs != nil {
		o.Jobs = *f.Jobs
	}
	return nil
}

func channels(mono bool) int {
	if mono {
		return 1
	}
	return 2
}

// Parse reads the command line args (without the program name). Usage and
// flag errors are printed to output. A -h or -help flag, or no arguments at
// all, prints usage and returns flag.ErrHelp.
func Parse(name string, args []string, output io.Writer) (*Options, error) {
	def := modrender.DefaultConfig()

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(output)
	var (
		flagConfig    = fs.String("config", "", "YAML file with default settings, flags override it")
		flagHz        = fs.Int("hz", def.SampleRate, "output hz")
		flagBits      = fs.Int("bits", def.BitDepth, "bits per sample, 8, 16, 24 or 32")
		flagMono      = fs.Bool("mono", false, "write a single channel file")
		flagInterp    = fs.String("interp", def.Interpolation.String(), "sample interpolation, nearest or linear")
		flagBoost     = fs.Int("boost", def.VolumeBoost, "volume boost, an integer between 1 and 4")
		flagMute      = fs.Uint("mute", 0, "bitmask of muted channels, channel 1 in LSB, set bit to mute channel")
		flagLoops     = fs.Int("loops", 0, "number of times the song may loop back before the render ends")
		flagMaxOrders = fs.Int("maxorders", 0, "maximum number of orders to play, 0 for no limit")
		flagStart     = fs.Int("start", 0, "starting order in the song, clamped to song max")
		flagReverb    = fs.String("reverb", def.Reverb, "choose from "+strings.Join(comb.Presets(), ", "))
		flagJobs      = fs.Int("j", 1, "number of files to render in parallel")
		flagOut       = fs.String("o", "", "output directory, renders every input file to <name>.wav in it")
		flagNoColor   = fs.Bool("nocolor", false, "disable colored output")
	)
	fs.Usage = func() {
		fmt.Fprintf(output, "usage: %s [flags] <module file> <.wav output file>\n", name)
		fmt.Fprintf(output, "       %s [flags] -o <dir> <module file>...\n\n", name)
		fs.PrintDefaults()
	}
	if len(args) == 0 {
		fs.Usage()
		return nil, flag.ErrHelp
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	o := &Options{Render: def, Jobs: 1, Args: fs.Args()}
	if *flagConfig != "" {
		f, err := LoadFile(*flagConfig)
		if err != nil {
			return nil, err
		}
		if err := f.apply(o); err != nil {
			return nil, err
		}
	}

	// Only flags given on the command line override the file
	var err error
	fs.Visit(func(f *flag.Flag) {
		c := &o.Render
		switch f.Name {
		case "hz":
			c.SampleRate = *flagHz
		case "bits":
			c.BitDepth = *flagBits
		case "mono":
			c.Channels = channels(*flagMono)
		case "interp":
			var interp modrender.Interpolation
			if interp, err = modrender.ParseInterpolation(*flagInterp); err == nil {
				c.Interpolation = interp
			}
		case "boost":
			c.VolumeBoost = *flagBoost
		case "mute":
			c.Mute = *flagMute
		case "loops":
			c.Loops = *flagLoops
		case "maxorders":
			c.MaxOrders = *flagMaxOrders
		case "start":
			c.StartOrder = *flagStart
		case "reverb":
			c.Reverb = *flagReverb
		case "j":
			o.Jobs = *flagJobs
		}
	})
	if err != nil {
		return nil, err
	}
	o.OutDir = *flagOut
	o.NoColor = *flagNoColor

	if o.Jobs < 1 {
		return nil, fmt.Errorf("%w: -j must be at least 1", modrender.ErrInvalidConfig)
	}
	if err := o.Render.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}
