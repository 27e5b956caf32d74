package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/kjk/nstore/log"
	"github.com/kjk/nstore/minioutil"
	"github.com/kjk/nstore/nstore"
	"github.com/kjk/nstore/query"
	"github.com/kjk/nstore/u"
	"github.com/tidwall/pretty"
	"github.com/toon-format/toon-go"
)

const usage = `usage: nstore [flags] <command> [args]

commands:
  get <key>              print document
  put [key] <json>       save document, prints the key
  rm <key>               remove document
  ls                     list keys
  find <query>           print documents matching query e.g. '{"age >": 18}'
  count [query]          number of documents matching query
  compact                remove stale records from the log
  clear                  remove all documents
  stats                  print stats
  export <path>          export documents, .zst .br .gz compress
  import <path>          import documents from export
  backup <remotePath>    export and upload to s3 (backup in config)
  restore <remotePath>   download from s3 and import

flags:
`

type app struct {
	out io.Writer
	// output in toon format instead of json
	toon bool
	// colorize json output
	color bool
	conf  *Config
	store *nstore.Store
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}

func main() {
	err := run(os.Args[1:], os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	flags := flag.NewFlagSet("nstore", flag.ContinueOnError)
	var (
		flgConfig  string
		flgDB      string
		flgVerbose bool
		flgToon    bool
	)
	flags.StringVar(&flgConfig, "config", "nstore.yaml", "path of yaml config file")
	flags.StringVar(&flgDB, "db", "", "path of database file, over-rides config")
	flags.BoolVar(&flgVerbose, "v", false, "verbose logging")
	flags.BoolVar(&flgToon, "toon", false, "print documents in toon format")
	flags.Usage = func() {
		fmt.Fprint(flags.Output(), usage)
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return err
	}

	isFlagSet := func(name string) bool {
		set := false
		flags.Visit(func(f *flag.Flag) {
			if f.Name == name {
				set = true
			}
		})
		return set
	}
	conf, err := readConfig(flgConfig, isFlagSet("config"))
	if err != nil {
		return err
	}
	if flgDB != "" {
		conf.DB = flgDB
	}
	if conf.DB == "" {
		return errors.New("database not set, use -db or config")
	}

	log.Verbose = flgVerbose || conf.Verbose
	// logs go to stderr so that output of commands can be piped
	log.Output = os.Stderr
	if conf.LogDir != "" {
		log.Init(&log.Config{Dir: conf.LogDir})
		defer log.Close()
	}

	cmdArgs := flags.Args()
	if len(cmdArgs) == 0 {
		flags.Usage()
		return errors.New("missing command")
	}

	s := &nstore.Store{
		Path:               conf.DB,
		SyncWrites:         conf.SyncWrites,
		CompactConcurrency: conf.CompactConcurrency,
	}
	if conf.TTL != nil {
		s.CompactFilter = ttlFilter(conf.TTL, time.Now)
	}
	if err = nstore.OpenStore(s); err != nil {
		return err
	}
	a := &app{
		out:   out,
		toon:  flgToon,
		color: out == os.Stdout && isTerminal(os.Stdout),
		conf:  conf,
		store: s,
	}
	err = a.runCommand(cmdArgs[0], cmdArgs[1:])
	if errClose := s.Close(); err == nil {
		err = errClose
	}
	return err
}

func expectArgs(cmd string, args []string, minArgs int, maxArgs int) error {
	if len(args) < minArgs || len(args) > maxArgs {
		return fmt.Errorf("'%s': wrong number of arguments (%d)", cmd, len(args))
	}
	return nil
}

func (a *app) runCommand(cmd string, args []string) error {
	ctx := context.Background()
	s := a.store
	switch cmd {
	case "get":
		if err := expectArgs(cmd, args, 1, 1); err != nil {
			return err
		}
		d, err := s.GetRaw(args[0])
		if err != nil {
			return err
		}
		return a.printDoc(d)

	case "put":
		if err := expectArgs(cmd, args, 1, 2); err != nil {
			return err
		}
		key, doc := "", args[0]
		if len(args) == 2 {
			key, doc = args[0], args[1]
		}
		key, err := s.SaveRaw(key, json.RawMessage(doc))
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, key)

	case "rm":
		if err := expectArgs(cmd, args, 1, 1); err != nil {
			return err
		}
		return s.Remove(args[0])

	case "ls":
		keys := s.Keys()
		slices.Sort(keys)
		for _, k := range keys {
			fmt.Fprintln(a.out, k)
		}

	case "find":
		if err := expectArgs(cmd, args, 1, 1); err != nil {
			return err
		}
		q, err := query.ParseJSON([]byte(args[0]))
		if err != nil {
			return err
		}
		res, err := query.Find(ctx, s, q)
		if err != nil {
			return err
		}
		d, err := json.Marshal(res)
		if err != nil {
			return err
		}
		return a.printDoc(d)

	case "count":
		if err := expectArgs(cmd, args, 0, 1); err != nil {
			return err
		}
		var q query.Query
		if len(args) == 1 {
			var err error
			if q, err = query.ParseJSON([]byte(args[0])); err != nil {
				return err
			}
		}
		n, err := query.Count(ctx, s, q)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, n)

	case "compact", "clear":
		if err := expectArgs(cmd, args, 0, 0); err != nil {
			return err
		}
		before := s.Stats()
		var err error
		if cmd == "clear" {
			err = s.Clear()
		} else {
			err = s.Compact()
		}
		if err != nil {
			return err
		}
		after := s.Stats()
		fmt.Fprintf(a.out, "%s: %d documents, %s => %s\n", cmd, after.Live, u.FormatSize(before.Size), u.FormatSize(after.Size))

	case "stats":
		st := s.Stats()
		d, err := json.Marshal(map[string]any{
			"path":             s.Path,
			"live":             st.Live,
			"stale":            st.Stale,
			"size":             st.Size,
			"state":            st.State.String(),
			"skippedRecords":   st.SkippedRecords,
			"stalePercent":     u.Percent(int64(st.Live+st.Stale), int64(st.Stale)),
			"compactionErrors": st.CompactionErrors,
		})
		if err != nil {
			return err
		}
		return a.printDoc(d)

	case "export", "import":
		if err := expectArgs(cmd, args, 1, 1); err != nil {
			return err
		}
		var n int
		var err error
		if cmd == "export" {
			n, err = s.ExportFile(args[0])
		} else {
			n, err = s.ImportFile(args[0])
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s: %d documents\n", cmd, n)

	case "backup", "restore":
		if err := expectArgs(cmd, args, 1, 1); err != nil {
			return err
		}
		if a.conf.Backup == nil {
			return errors.New("backup is not configured")
		}
		mc, err := minioutil.New(ctx, a.conf.Backup)
		if err != nil {
			return err
		}
		var n int
		if cmd == "backup" {
			n, err = mc.Backup(ctx, s, args[0])
		} else {
			n, err = mc.Restore(ctx, s, args[0])
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s: %d documents\n", cmd, n)

	default:
		return fmt.Errorf("unknown command '%s'", cmd)
	}
	return nil
}

// printDoc prints JSON document as toon or indented JSON
func (a *app) printDoc(d []byte) error {
	if a.toon {
		var v any
		if err := json.Unmarshal(d, &v); err != nil {
			return err
		}
		t, err := toon.Marshal(v)
		if err != nil {
			return err
		}
		s := string(t)
		if !strings.HasSuffix(s, "\n") {
			s += "\n"
		}
		_, err = io.WriteString(a.out, s)
		return err
	}
	d = pretty.Pretty(d)
	if a.color {
		d = pretty.Color(d, pretty.TerminalStyle)
	}
	_, err := a.out.Write(d)
	return err
}
