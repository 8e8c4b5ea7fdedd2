package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/stocktag/metaembed/core"
	"github.com/stocktag/metaembed/core/image"
	"github.com/stocktag/metaembed/core/jpg"
)

const usage = `Usage:
  surgery view [-json] [-record] [-v] <image.jpg>
  surgery embed [-title T] [-keywords k1,k2] [-caption C] [-out path] [-j N] <image.jpg>...
  surgery embed64 [-title T] [-keywords k1,k2] [-caption C]   (base64 JPEG on stdin)
  surgery formats`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "view":
		err = runView(args)
	case "embed":
		err = runEmbed(args)
	case "embed64":
		err = runEmbed64(args, os.Stdin, os.Stdout)
	case "formats":
		runFormats()
	case "help", "-h", "--help":
		fmt.Println(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s\n", cmd, usage)
		os.Exit(1)
	}
	if err != nil {
		core.PrintError(err.Error())
		os.Exit(1)
	}
}

func setupLogging(verbose bool) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// recordFlags registers the metadata flags shared by embed and embed64.
type recordFlags struct {
	title, keywords, caption string
	nfc, replaceAPP13        bool
	verbose                  bool
}

func (r *recordFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&r.title, "title", "", "title (IPTC 2:05, dc:title)")
	fs.StringVar(&r.keywords, "keywords", "", "comma separated keywords (IPTC 2:25, dc:subject)")
	fs.StringVar(&r.caption, "caption", "", "caption (IPTC 2:120, dc:description)")
	fs.BoolVar(&r.nfc, "nfc", false, "normalize text to Unicode NFC")
	fs.BoolVar(&r.replaceAPP13, "replace-app13", false, "replace an existing APP13 wholesale instead of keeping other Photoshop resources")
	fs.BoolVar(&r.verbose, "v", false, "verbose logging")
}

func (r *recordFlags) record() core.Record {
	return core.Record{
		Title:    r.title,
		Keywords: core.ParseKeywords(r.keywords),
		Caption:  r.caption,
	}
}

func (r *recordFlags) options() jpg.Options {
	opts := jpg.DefaultOptions()
	opts.NormalizeNFC = r.nfc
	opts.KeepPhotoshopResources = !r.replaceAPP13
	return opts
}

func runView(args []string) error {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	jsonOut := fs.Bool("json", false, "print JSON")
	verbose := fs.Bool("v", false, "verbose output")
	recordOnly := fs.Bool("record", false, "print only title, keywords and caption as JSON")
	fs.Parse(args)
	setupLogging(*verbose)
	if fs.NArg() != 1 {
		return fmt.Errorf("view takes exactly one file")
	}

	path := fs.Arg(0)
	if *recordOnly {
		return printRecord(path, os.Stdout)
	}
	h, err := image.ForFile(path, jpg.DefaultOptions())
	if err != nil {
		return err
	}
	m, err := h.View(path)
	if err != nil {
		return err
	}
	core.NewPrinter(*jsonOut, *verbose).PrintMetadata(m)
	return nil
}

func printRecord(path string, out io.Writer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	rec, err := jpg.ReadRecord(data)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}

func runEmbed(args []string) error {
	fs := flag.NewFlagSet("embed", flag.ExitOnError)
	var rf recordFlags
	rf.register(fs)
	out := fs.String("out", "", "output path (single input only; default: in place)")
	jobs := fs.Int("j", runtime.NumCPU(), "files processed in parallel")
	fs.Parse(args)
	setupLogging(rf.verbose)

	files := fs.Args()
	if len(files) == 0 {
		return fmt.Errorf("embed needs at least one file")
	}
	if *out != "" && len(files) > 1 {
		return fmt.Errorf("-out can only be used with a single input file")
	}
	rec := rf.record()
	if rec.IsEmpty() {
		log.Warn().Msg("no title, keywords or caption given; existing XMP keywords will be cleared")
	}

	opts := rf.options()
	printer := core.NewPrinter(false, rf.verbose)
	var failed atomic.Int32
	var g errgroup.Group
	g.SetLimit(max(*jobs, 1))
	for _, path := range files {
		path := path
		g.Go(func() error {
			if err := embedFile(path, *out, rec, opts); err != nil {
				log.Error().Err(err).Str("file", path).Msg("embed failed")
				failed.Add(1)
				return nil
			}
			printer.PrintSuccess("embedded " + core.ResolveOutPath(path, *out))
			return nil
		})
	}
	g.Wait()
	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d files failed", n, len(files))
	}
	return nil
}

func embedFile(path, out string, rec core.Record, opts jpg.Options) error {
	h, err := image.ForFile(path, opts)
	if err != nil {
		return err
	}
	return h.Embed(path, out, rec)
}

func runEmbed64(args []string, in io.Reader, out io.Writer) error {
	fs := flag.NewFlagSet("embed64", flag.ExitOnError)
	var rf recordFlags
	rf.register(fs)
	fs.Parse(args)
	setupLogging(rf.verbose)

	raw, err := io.ReadAll(bufio.NewReader(in))
	if err != nil {
		return err
	}
	res, err := jpg.NewEmbedder(rf.options()).EmbedBase64(string(raw), rf.record())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, res)
	return err
}

func runFormats() {
	for _, info := range image.Formats() {
		state := "unsupported"
		if info.CanEmbed {
			state = "view, embed"
		}
		fmt.Printf("%-10s %-22s %-12s %s\n", info.Name, strings.Join(info.Extensions, " "), state, info.Notes)
	}
}
