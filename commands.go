package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"

	"github.com/soocke/pixelmatch/config"
	"github.com/soocke/pixelmatch/debug"
	"github.com/soocke/pixelmatch/domain/capture"
	"github.com/soocke/pixelmatch/domain/imageio"
	"github.com/soocke/pixelmatch/domain/locate"
	"github.com/soocke/pixelmatch/domain/match"
	"github.com/soocke/pixelmatch/domain/watch"
)

// cliState is shared by every subcommand; PersistentPreRunE fills it.
type cliState struct {
	cfgPath    string
	screenPath string
	debugFlag  bool
	gray       bool
	regionFlag string

	cfg     *config.Config
	logger  *slog.Logger
	grabber capture.Grabber
	stopDbg context.CancelFunc
}

func newRootCmd() *cobra.Command {
	st := &cliState{}
	root := &cobra.Command{
		Use:           "pixelmatch",
		Short:         "Find colors, templates and digit strings on screen",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return st.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if st.stopDbg != nil {
				st.stopDbg()
			}
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&st.cfgPath, "config", "pixelmatch.json", "path to JSON config")
	pf.StringVar(&st.screenPath, "screen", "", "read the screen from this image file instead of the display")
	pf.BoolVar(&st.debugFlag, "debug", false, "debug logging and runtime stats")
	pf.BoolVar(&st.gray, "gray", false, "match in grayscale instead of color")
	pf.StringVar(&st.regionFlag, "region", "", "search region x,y,w,h (defaults to config region)")

	root.AddCommand(
		newPointCmd(st),
		newColorCmd(st),
		newExistsCmd(st),
		newCoordCmd(st),
		newCoordsCmd(st),
		newDigitsCmd(st),
		newCaptureCmd(st),
		newWatchCmd(st),
	)
	return root
}

func (st *cliState) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(st.cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cmd.Flags().Changed("debug") {
		cfg.Debug = st.debugFlag
	}
	if cmd.Flags().Changed("gray") {
		cfg.UseRGB = !st.gray
	}
	st.cfg = cfg

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	st.logger = NewLogger(os.Stderr, level)
	if cfg.Debug {
		ctx, cancel := context.WithCancel(context.Background())
		st.stopDbg = cancel
		debug.StartGoroutineLogger(ctx, 5*time.Second, st.logger)
		debug.StartMemLogger(ctx, 5*time.Second, st.logger)
	}

	if st.screenPath != "" {
		img, err := imaging.Open(st.screenPath)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", match.ErrCaptureUnavailable, st.screenPath, err)
		}
		st.grabber = capture.NewImageGrabber(img)
	} else {
		st.grabber = capture.NewScreenGrabber()
	}
	return nil
}

func (st *cliState) locator() (*locate.Locator, error) {
	return locate.New(st.grabber, st.cfg, st.logger)
}

func (st *cliState) region() (match.Region, error) {
	if st.regionFlag == "" {
		r := match.Region{X: st.cfg.RegionX, Y: st.cfg.RegionY, W: st.cfg.RegionW, H: st.cfg.RegionH}
		return r, r.Validate()
	}
	return parseRegion(st.regionFlag)
}

func (st *cliState) mode() match.Mode { return match.ModeFor(st.cfg.UseRGB) }

func newPointCmd(st *cliState) *cobra.Command {
	var colorFlag string
	var tol int
	cmd := &cobra.Command{
		Use:   "point X Y",
		Short: "Check the color of a single screen pixel",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			x, err := strconv.Atoi(args[0])
			if err != nil {
				return err
			}
			y, err := strconv.Atoi(args[1])
			if err != nil {
				return err
			}
			c, err := parseColor(colorFlag)
			if err != nil {
				return err
			}
			loc, err := st.locator()
			if err != nil {
				return err
			}
			ok, err := loc.PointColor(x, y, c, st.tolerance(cmd, tol))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ok)
			return nil
		},
	}
	cmd.Flags().StringVar(&colorFlag, "color", "", "target color R,G,B or #rrggbb")
	cmd.Flags().IntVar(&tol, "tolerance", 0, "max Manhattan RGB difference (defaults to config)")
	_ = cmd.MarkFlagRequired("color")
	return cmd
}

func (st *cliState) tolerance(cmd *cobra.Command, v int) uint32 {
	if cmd.Flags().Changed("tolerance") && v >= 0 {
		return uint32(v)
	}
	return st.cfg.Tolerance
}

func newColorCmd(st *cliState) *cobra.Command {
	var colorFlag string
	var tol int
	var coord, legacy bool
	cmd := &cobra.Command{
		Use:   "color",
		Short: "Search a region for a color",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := parseColor(colorFlag)
			if err != nil {
				return err
			}
			r, err := st.region()
			if err != nil {
				return err
			}
			loc, err := st.locator()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch {
			case legacy:
				x, y, err := loc.RegionColorCoordLegacy(r, c, st.tolerance(cmd, tol))
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%d %d\n", x, y)
			case coord:
				p, ok, err := loc.RegionColorCoord(r, c, st.tolerance(cmd, tol))
				if err != nil {
					return err
				}
				printPoint(cmd, p, ok)
			default:
				ok, err := loc.RegionHasColor(r, c, st.tolerance(cmd, tol))
				if err != nil {
					return err
				}
				fmt.Fprintln(out, ok)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&colorFlag, "color", "", "target color R,G,B or #rrggbb")
	cmd.Flags().IntVar(&tol, "tolerance", 0, "max Manhattan RGB difference (defaults to config)")
	cmd.Flags().BoolVar(&coord, "coord", false, "print the first matching coordinate")
	cmd.Flags().BoolVar(&legacy, "legacy", false, "print the coordinate with 0 0 meaning not found")
	_ = cmd.MarkFlagRequired("color")
	return cmd
}

func confidenceFlag(cmd *cobra.Command, v *float64) {
	cmd.Flags().Float64Var(v, "confidence", 0, "minimum correlation score (defaults to config)")
}

func (st *cliState) confidence(cmd *cobra.Command, v, fallback float64) float64 {
	if cmd.Flags().Changed("confidence") {
		return v
	}
	return fallback
}

func newExistsCmd(st *cliState) *cobra.Command {
	var conf float64
	cmd := &cobra.Command{
		Use:   "exists TEMPLATE",
		Short: "Report whether a template appears in the region",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := st.region()
			if err != nil {
				return err
			}
			loc, err := st.locator()
			if err != nil {
				return err
			}
			ok, err := loc.ImageExists(r, args[0], st.confidence(cmd, conf, st.cfg.Threshold), st.mode())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ok)
			return nil
		},
	}
	confidenceFlag(cmd, &conf)
	return cmd
}

func newCoordCmd(st *cliState) *cobra.Command {
	var conf float64
	var legacy bool
	cmd := &cobra.Command{
		Use:   "coord TEMPLATE",
		Short: "Print the center of a template match",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := st.region()
			if err != nil {
				return err
			}
			loc, err := st.locator()
			if err != nil {
				return err
			}
			c := st.confidence(cmd, conf, st.cfg.Threshold)
			if legacy {
				x, y, err := loc.ImageCoordLegacy(r, args[0], c, st.mode())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d %d\n", x, y)
				return nil
			}
			p, ok, err := loc.ImageCoord(r, args[0], c, st.mode())
			if err != nil {
				return err
			}
			printPoint(cmd, p, ok)
			return nil
		},
	}
	confidenceFlag(cmd, &conf)
	cmd.Flags().BoolVar(&legacy, "legacy", false, "print 0 0 when not found")
	return cmd
}

func newCoordsCmd(st *cliState) *cobra.Command {
	var conf float64
	cmd := &cobra.Command{
		Use:   "coords TEMPLATE...",
		Short: "Print deduplicated centers of every match of each template",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := st.region()
			if err != nil {
				return err
			}
			loc, err := st.locator()
			if err != nil {
				return err
			}
			pts, err := loc.ImagesCoords(r, args, st.confidence(cmd, conf, st.cfg.Threshold), st.mode())
			if err != nil {
				return err
			}
			for _, p := range pts {
				fmt.Fprintf(cmd.OutOrStdout(), "%d %d\n", p.X, p.Y)
			}
			return nil
		},
	}
	confidenceFlag(cmd, &conf)
	return cmd
}

func newDigitsCmd(st *cliState) *cobra.Command {
	var conf float64
	var glyphs string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "digits",
		Short: "Recognize a digit string with a 0-9 glyph library",
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := st.region()
			if err != nil {
				return err
			}
			loc, err := st.locator()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			s, err := loc.RecognizeDigits(ctx, r, st.glyphDir(glyphs), st.confidence(cmd, conf, st.cfg.DigitThreshold))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), s)
			return nil
		},
	}
	confidenceFlag(cmd, &conf)
	cmd.Flags().StringVar(&glyphs, "glyphs", "", "glyph library directory (defaults to config)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "give up after this long")
	return cmd
}

func (st *cliState) glyphDir(flag string) string {
	if flag != "" {
		return flag
	}
	return st.cfg.GlyphDir
}

func newCaptureCmd(st *cliState) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Save the region to an image file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := st.region()
			if err != nil {
				return err
			}
			img, err := st.grabber.Grab(r)
			if err != nil {
				return err
			}
			defer capture.RecycleFrame(img)
			channels := 3
			if !st.cfg.UseRGB {
				channels = 1
			}
			buf, err := match.FromRGBA(img, channels)
			if err != nil {
				return err
			}
			return imageio.Save(buf, out)
		},
	}
	cmd.Flags().StringVar(&out, "out", "capture.png", "output file; format follows the extension")
	return cmd
}

func newWatchCmd(st *cliState) *cobra.Command {
	var conf float64
	var glyphs string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll the region and log the digit string whenever it changes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := st.region()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			interval := time.Duration(st.cfg.PollIntervalMs) * time.Millisecond
			svc := capture.NewService(st.logger, st.grabber, r, interval)
			svc.Start()
			defer svc.Stop()
			lib := match.Glyphs(st.glyphDir(glyphs), st.cfg.GlyphExt, imageio.Load, st.logger)
			return watchDigits(ctx, svc, lib, st.confidence(cmd, conf, st.cfg.DigitThreshold), interval, func(s string) {
				fmt.Fprintln(cmd.OutOrStdout(), s)
				st.logger.Info("watch.changed", "digits", s)
			})
		},
	}
	confidenceFlag(cmd, &conf)
	cmd.Flags().StringVar(&glyphs, "glyphs", "", "glyph library directory (defaults to config)")
	return cmd
}

// watchDigits recognizes each new frame from src whose pixels changed and
// calls emit when the string differs from the previous one. It returns when
// ctx ends.
func watchDigits(ctx context.Context, src capture.FrameSource, lib *match.GlyphLibrary, conf float64, interval time.Duration, emit func(string)) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	det := watch.NewChangeDetector(lib.Logger())
	var lastSeq uint64
	last := ""
	first := true
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-t.C:
		}
		snap := src.LatestFrame()
		if snap.Image == nil || snap.Sequence == lastSeq {
			continue
		}
		lastSeq = snap.Sequence
		buf, err := match.FromRGBA(snap.Image, 1)
		if err != nil {
			return err
		}
		if !det.Changed(buf) {
			continue
		}
		s := match.RecognizeDigits(buf, lib, conf, snap.Region.Origin())
		if first || s != last {
			emit(s)
			last, first = s, false
		}
	}
}

func printPoint(cmd *cobra.Command, p match.Point, ok bool) {
	if !ok {
		fmt.Fprintln(cmd.OutOrStdout(), "not found")
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d %d\n", p.X, p.Y)
}

// parseColor accepts "R,G,B" or "#rrggbb".
func parseColor(s string) (match.Color, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "#") {
		if len(s) != 7 {
			return match.Color{}, fmt.Errorf("color %q: want #rrggbb", s)
		}
		v, err := strconv.ParseUint(s[1:], 16, 32)
		if err != nil {
			return match.Color{}, fmt.Errorf("color %q: %w", s, err)
		}
		return match.Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return match.Color{}, fmt.Errorf("color %q: want R,G,B", s)
	}
	var ch [3]uint8
	for i, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 8)
		if err != nil {
			return match.Color{}, fmt.Errorf("color %q: %w", s, err)
		}
		ch[i] = uint8(v)
	}
	return match.Color{R: ch[0], G: ch[1], B: ch[2]}, nil
}

// parseRegion accepts "x,y,w,h".
func parseRegion(s string) (match.Region, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return match.Region{}, fmt.Errorf("region %q: want x,y,w,h", s)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return match.Region{}, fmt.Errorf("region %q: %w", s, err)
		}
		v[i] = n
	}
	r := match.Region{X: v[0], Y: v[1], W: v[2], H: v[3]}
	return r, r.Validate()
}
