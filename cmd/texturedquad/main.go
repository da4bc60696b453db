// Command texturedquad opens a resizable window and draws a rotating textured
// quad with Vulkan.
package main

import (
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/texturedquad/config"
	"github.com/vkngwrapper/texturedquad/frame"
	"github.com/vkngwrapper/texturedquad/renderer"
)

const statsInterval = 5 * time.Second

func main() {
	// SDL and the Vulkan surface must stay on the main thread.
	runtime.LockOSThread()

	logger := logrus.New()

	cfg, err := config.Load(os.Args[1:], ".env")
	if errors.Is(err, flag.ErrHelp) {
		config.Usage(os.Stderr)
		return
	}
	if err != nil {
		logger.Fatalf("%+v", err)
	}
	logger.SetLevel(cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Fatalf("%+v", err)
	}
}

func run(cfg config.Config, log *logrus.Logger) error {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return errors.Wrap(err, "init sdl")
	}
	defer sdl.Quit()

	window, err := sdl.CreateWindow("Textured Quad", sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED,
		int32(cfg.Width), int32(cfg.Height), sdl.WINDOW_SHOWN|sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		return errors.Wrap(err, "create window")
	}
	defer window.Destroy()

	r, err := renderer.New(window, cfg, log.WithField("component", "renderer"))
	if err != nil {
		return err
	}
	defer closeAndLog(log, "renderer", r.Close)

	scheduler, err := frame.NewScheduler(r, frame.Options{
		FramesInFlight: cfg.FramesInFlight,
		FenceTimeout:   cfg.FenceTimeout,
		InitialExtent:  drawableExtent(window),
		Logger:         log.WithField("component", "scheduler"),
	})
	if err != nil {
		return err
	}
	defer closeAndLog(log, "scheduler", scheduler.Close)

	watch := sdl.AddEventWatchFunc(func(event sdl.Event, _ interface{}) bool {
		if e, ok := event.(*sdl.WindowEvent); ok && e.Event == sdl.WINDOWEVENT_SIZE_CHANGED {
			size := drawableExtent(window)
			scheduler.RequestResize(size.Width, size.Height)
		}
		return true
	}, nil)
	defer sdl.DelEventWatch(watch)

	return mainLoop(scheduler, newStatsReporter(log, statsInterval))
}

func mainLoop(scheduler *frame.Scheduler, stats *statsReporter) error {
	rendering := true

	for {
		for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
			switch e := event.(type) {
			case *sdl.QuitEvent:
				return nil
			case *sdl.WindowEvent:
				switch e.Event {
				case sdl.WINDOWEVENT_MINIMIZED:
					rendering = false
				case sdl.WINDOWEVENT_RESTORED, sdl.WINDOWEVENT_MAXIMIZED:
					rendering = true
				}
			}
		}

		if !rendering {
			sdl.Delay(16)
			continue
		}

		if err := scheduler.DrawFrame(); err != nil {
			return err
		}
		stats.tick(scheduler.Stats())
	}
}

func drawableExtent(window *sdl.Window) frame.Extent {
	w, h := window.VulkanGetDrawableSize()
	return frame.Extent{Width: int(w), Height: int(h)}
}

func closeAndLog(log logrus.FieldLogger, name string, closer func() error) {
	if err := closer(); err != nil {
		log.WithError(err).Errorf("close %s", name)
	}
}
