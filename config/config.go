// Package config loads the runtime settings of the textured quad demo.
//
// Values are layered: built-in defaults, then a .env file, then QUAD_*
// environment variables, then command-line flags.
package config

import (
	"flag"
	"io"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// EnvPrefix is prepended to the upper-cased flag name to form its
// environment variable, e.g. frames-in-flight -> QUAD_FRAMES_IN_FLIGHT.
const EnvPrefix = "QUAD_"

// Present mode preferences. The renderer falls back to FIFO when the
// preferred mode is not supported by the surface.
const (
	PresentMailbox     = "mailbox"
	PresentFIFO        = "fifo"
	PresentFIFORelaxed = "fifo-relaxed"
	PresentImmediate   = "immediate"
)

var presentModes = []string{PresentMailbox, PresentFIFO, PresentFIFORelaxed, PresentImmediate}

type Config struct {
	Width  int
	Height int

	// FramesInFlight is the number of frame slots. Must be at least 1.
	FramesInFlight int
	// FenceTimeout bounds each fence wait. Zero waits forever.
	FenceTimeout time.Duration

	Validation  bool
	PresentMode string

	ShaderDir   string
	TexturePath string
	// MeshPath optionally replaces the built-in quad with an OBJ mesh.
	MeshPath string

	LogLevel logrus.Level
}

func Default() Config {
	return Config{
		Width:          800,
		Height:         600,
		FramesInFlight: 2,
		Validation:     true,
		PresentMode:    PresentMailbox,
		ShaderDir:      "shaders",
		TexturePath:    "textures/texture.png",
		LogLevel:       logrus.InfoLevel,
	}
}

// Load builds a Config from args (without the program name), the process
// environment and any of envFiles that exist.
func Load(args []string, envFiles ...string) (Config, error) {
	cfg := Default()
	fs := cfg.flagSet()

	fileEnv, err := readEnvFiles(envFiles)
	if err != nil {
		return cfg, err
	}

	var setErr error
	fs.VisitAll(func(f *flag.Flag) {
		if setErr != nil {
			return
		}
		key := envKey(f.Name)
		value, ok := os.LookupEnv(key)
		if !ok {
			value, ok = fileEnv[key]
		}
		if !ok {
			return
		}
		if err := fs.Set(f.Name, value); err != nil {
			setErr = errors.Wrapf(err, "parse %s", key)
		}
	})
	if setErr != nil {
		return cfg, setErr
	}

	if err := fs.Parse(args); err != nil {
		return cfg, errors.Wrap(err, "parse flags")
	}
	if fs.NArg() > 0 {
		return cfg, errors.Newf("unexpected argument %q", fs.Arg(0))
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return errors.Newf("window size must be positive, got %dx%d", c.Width, c.Height)
	}
	if c.FramesInFlight < 1 {
		return errors.Newf("frames in flight must be at least 1, got %d", c.FramesInFlight)
	}
	if c.FenceTimeout < 0 {
		return errors.Newf("fence timeout must not be negative, got %s", c.FenceTimeout)
	}
	if c.ShaderDir == "" {
		return errors.New("shader directory is required")
	}
	if c.TexturePath == "" {
		return errors.New("texture path is required")
	}

	for _, mode := range presentModes {
		if c.PresentMode == mode {
			return nil
		}
	}
	return errors.Newf("unknown present mode %q, expected one of %s", c.PresentMode, strings.Join(presentModes, ", "))
}

func (c *Config) flagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("texturedquad", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.IntVar(&c.Width, "width", c.Width, "initial window width")
	fs.IntVar(&c.Height, "height", c.Height, "initial window height")
	fs.IntVar(&c.FramesInFlight, "frames-in-flight", c.FramesInFlight, "number of frames recorded ahead of the GPU")
	fs.DurationVar(&c.FenceTimeout, "fence-timeout", c.FenceTimeout, "give up on a fence after this long (0 waits forever)")
	fs.BoolVar(&c.Validation, "validation", c.Validation, "enable the Khronos validation layer")
	fs.StringVar(&c.PresentMode, "present-mode", c.PresentMode, "preferred present mode: "+strings.Join(presentModes, ", "))
	fs.StringVar(&c.ShaderDir, "shaders", c.ShaderDir, "directory holding vert.spv and frag.spv")
	fs.StringVar(&c.TexturePath, "texture", c.TexturePath, "image applied to the quad")
	fs.StringVar(&c.MeshPath, "mesh", c.MeshPath, "optional OBJ file drawn instead of the quad")
	fs.Var((*levelValue)(&c.LogLevel), "log-level", "logrus level")

	return fs
}

// Usage describes every flag and its environment variable.
func Usage(w io.Writer) {
	cfg := Default()
	fs := cfg.flagSet()
	fs.SetOutput(w)
	fs.VisitAll(func(f *flag.Flag) {
		f.Usage += " [$" + envKey(f.Name) + "]"
	})
	fs.PrintDefaults()
}

func envKey(name string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

func readEnvFiles(paths []string) (map[string]string, error) {
	var existing []string
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			existing = append(existing, path)
		} else if !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "stat %s", path)
		}
	}
	if len(existing) == 0 {
		return map[string]string{}, nil
	}

	env, err := godotenv.Read(existing...)
	if err != nil {
		return nil, errors.Wrap(err, "read env file")
	}
	return env, nil
}

type levelValue logrus.Level

func (l *levelValue) String() string {
	return logrus.Level(*l).String()
}

func (l *levelValue) Set(s string) error {
	level, err := logrus.ParseLevel(s)
	if err != nil {
		return err
	}
	*l = levelValue(level)
	return nil
}
