package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/alessio/shellescape"
	"github.com/docopt/docopt-go"
	"github.com/google/shlex"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	sb "github.com/t7a/slotbase"
	"github.com/t7a/slotbase/source"
)

func init() {
	sb.SetupLogging()
}

type Opts struct {
	Init      bool
	Put       bool
	Get       bool
	Has       bool
	Ls        bool
	Ref       bool
	Rm        bool
	Steps     bool
	Deps      bool
	Run       bool
	Watch     bool
	Purge     bool
	Name      string
	Value     string
	Target    string
	Pattern   string
	File      string
	Symbol    string
	Codec     string
	Fs        string
	Vc        string
	Out       string
	Label     string
	Pos       string
	Args      string
	NoHistory bool `docopt:"--no-history"`
	Help      bool
	Version   bool
}

func main() {
	// see https://github.com/google/go-cmdtest
	os.Exit(run())
}

func run() (rc int) {

	usage := `slotbase

Usage:
  slot init [--codec=<codec>] [--fs=<fs>] [--vc=<vc>]
  slot put <name> <value>
  slot get <name>
  slot has <name>
  slot ls [<pattern>]
  slot ref <target> <name>
  slot rm <name>
  slot steps <name>
  slot deps <name>
  slot run <file> <symbol> [--out=<out>] [--label=<label>] [--pos=<pos>] [--args=<args>] [--no-history]
  slot watch
  slot purge

Options:
  -h --help        Show this screen.
  --version        Show version.
  --codec=<codec>  Value codec: msgpack, json or yaml.
  --fs=<fs>        File layer: disk or lzma.
  --vc=<vc>        Step chain backend: disk or git.
  --out=<out>      Comma-separated slots to store the result in.
  --label=<label>  Step label; defaults to the symbol.
  --pos=<pos>      Overwrite the chain entry at this position [default: -1].
  --args=<args>    Arguments as name=value pairs, shell quoted.
  --no-history     Promote only the outputs, not every slot written.

The store is the folder named by $SLOTDIR, or the current directory.
`
	parser := &docopt.Parser{OptionsFirst: false, HelpHandler: docopt.PrintHelpOnly}
	o, err := parser.ParseArgs(usage, os.Args[1:], "0.0")
	if err != nil {
		return 22
	}
	var opts Opts
	err = o.Bind(&opts)
	if err != nil {
		log.Error(err)
		return 22
	}
	log.Debugf("slot %s", shellescape.QuoteCommand(os.Args[1:]))

	switch true {
	case opts.Init:
		s, err := create(opts)
		if err != nil {
			log.Error(err)
			return 42
		}
		fmt.Printf("Initialized slot store in %s\n", s.Dir())
	case opts.Put:
		s, err := open()
		if err != nil {
			log.Error(err)
			return 42
		}
		_, err = s.Store(opts.Name, parseValue(opts.Value))
		if err != nil {
			log.Error(err)
			return 43
		}
	case opts.Get:
		s, err := open()
		if err != nil {
			log.Error(err)
			return 42
		}
		v, err := s.Load(opts.Name)
		if err != nil {
			log.Error(err)
			return 43
		}
		err = show(v)
		if err != nil {
			log.Error(err)
			return 44
		}
	case opts.Has:
		s, err := open()
		if err != nil {
			log.Error(err)
			return 42
		}
		fmt.Println(s.Contains(opts.Name))
	case opts.Ls:
		s, err := open()
		if err != nil {
			log.Error(err)
			return 42
		}
		names, err := s.Names(opts.Pattern)
		if err != nil {
			log.Error(err)
			return 43
		}
		printLines(names)
	case opts.Ref:
		s, err := open()
		if err != nil {
			log.Error(err)
			return 42
		}
		err = s.SetReference(opts.Target, opts.Name)
		if err != nil {
			log.Error(err)
			return 43
		}
		fmt.Printf("%s -> %s\n", opts.Name, opts.Target)
	case opts.Rm:
		s, err := open()
		if err != nil {
			log.Error(err)
			return 42
		}
		err = s.Remove(opts.Name)
		if err != nil {
			log.Error(err)
			return 43
		}
	case opts.Steps:
		s, err := open()
		if err != nil {
			log.Error(err)
			return 42
		}
		labels, err := s.Steps(opts.Name)
		if err != nil {
			log.Error(err)
			return 43
		}
		printLines(labels)
	case opts.Deps:
		s, err := open()
		if err != nil {
			log.Error(err)
			return 42
		}
		printLines(s.Trace(opts.Name))
	case opts.Run:
		out, err := runStep(opts)
		if err != nil {
			log.Error(err)
			return 42
		}
		err = show(out)
		if err != nil {
			log.Error(err)
			return 44
		}
	case opts.Watch:
		err := watch()
		if err != nil {
			log.Error(err)
			return 42
		}
	case opts.Purge:
		s, err := open()
		if err != nil {
			log.Error(err)
			return 42
		}
		err = s.Purge()
		if err != nil {
			log.Error(err)
			return 43
		}
	}
	return 0
}

func slotdir() (dir string, err error) {
	dir = os.Getenv("SLOTDIR")
	if dir == "" {
		dir, err = os.Getwd()
	}
	return
}

func create(opts Opts) (s *sb.Store, err error) {
	dir, err := slotdir()
	if err != nil {
		return
	}
	var options []sb.Option
	if opts.Codec != "" {
		options = append(options, sb.WithCodec(opts.Codec))
	}
	if opts.Fs != "" {
		options = append(options, sb.WithFilesystem(opts.Fs))
	}
	if opts.Vc != "" {
		options = append(options, sb.WithVersionBackend(opts.Vc))
	}
	return sb.Open(dir, options...)
}

func open() (s *sb.Store, err error) {
	dir, err := slotdir()
	if err != nil {
		return
	}
	return sb.Open(dir)
}

func runStep(opts Opts) (out interface{}, err error) {
	s, err := open()
	if err != nil {
		return
	}
	stepOpts := []sb.StepOption{sb.WithKeepHistory(!opts.NoHistory)}
	if opts.Out != "" {
		stepOpts = append(stepOpts, sb.WithOutput(strings.Split(opts.Out, ",")...))
	}
	if opts.Label != "" {
		stepOpts = append(stepOpts, sb.WithLabel(opts.Label))
	}
	pos, err := strconv.Atoi(opts.Pos)
	if err != nil {
		return nil, errors.Wrapf(err, "bad position %q", opts.Pos)
	}
	stepOpts = append(stepOpts, sb.WithPosition(pos))
	args, err := parseArgs(opts.Args)
	if err != nil {
		return
	}
	stepOpts = append(stepOpts, sb.WithArgs(args))
	return s.RunStep(source.Import{File: opts.File, Symbol: opts.Symbol}, stepOpts...)
}

// parseArgs splits a shell-quoted list of name=value pairs.
func parseArgs(txt string) (args map[string]interface{}, err error) {
	args = map[string]interface{}{}
	words, err := shlex.Split(txt)
	if err != nil {
		return nil, errors.Wrap(err, "parse args")
	}
	for _, word := range words {
		parts := strings.SplitN(word, "=", 2)
		if len(parts) != 2 {
			return nil, errors.Errorf("argument %q is not name=value", word)
		}
		args[parts[0]] = parseValue(parts[1])
	}
	return
}

// parseValue reads txt as JSON, with integers kept as int64.  Text
// that is not JSON is a plain string.
func parseValue(txt string) interface{} {
	dec := json.NewDecoder(strings.NewReader(txt))
	dec.UseNumber()
	var v interface{}
	err := dec.Decode(&v)
	if err != nil || dec.More() {
		return txt
	}
	return numbers(v)
}

func numbers(v interface{}) interface{} {
	switch v := v.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		f, _ := v.Float64()
		return f
	case []interface{}:
		for i := range v {
			v[i] = numbers(v[i])
		}
	case map[string]interface{}:
		for k := range v {
			v[k] = numbers(v[k])
		}
	}
	return v
}

// show prints strings as is, code as its source text and anything
// else as JSON.
func show(v interface{}) (err error) {
	switch v := v.(type) {
	case nil:
		return
	case string:
		fmt.Println(v)
		return
	case source.Sourcer:
		src, err := v.Source()
		if err != nil {
			return err
		}
		fmt.Print(src)
		return nil
	case source.Callable:
		fmt.Printf("<function %s>\n", v.CallableName())
		return
	}
	buf, err := json.Marshal(v)
	if err != nil {
		return
	}
	var out bytes.Buffer
	out.Write(buf)
	out.WriteString("\n")
	_, err = os.Stdout.Write(out.Bytes())
	return
}

func printLines(lines []string) {
	if len(lines) == 0 {
		return
	}
	fmt.Println(strings.Join(lines, "\n"))
}

func watch() (err error) {
	s, err := open()
	if err != nil {
		return
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	events, err := s.Watch(ctx)
	if err != nil {
		return
	}
	log.Infof("watching %s", s.Dir())
	for ev := range events {
		fmt.Printf("%s %s %s\n", ev.Op, ev.Kind, ev.Name)
	}
	return
}
