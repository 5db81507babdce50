// dbconvert moves a game database between the flatfile interchange
// format and the key-value store, optionally checking and cleaning it
// on the way through.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/crystal-mush/mushdb/pkg/archive"
	"github.com/crystal-mush/mushdb/pkg/comsys"
	"github.com/crystal-mush/mushdb/pkg/events"
	"github.com/crystal-mush/mushdb/pkg/flatfile"
	"github.com/crystal-mush/mushdb/pkg/gamedb"
	"github.com/crystal-mush/mushdb/pkg/kvdb"
	"github.com/crystal-mush/mushdb/pkg/mail"
	"github.com/crystal-mush/mushdb/pkg/validate"
)

func main() {
	from := flag.String("from", "flat", "Input side: flat or kv")
	to := flag.String("to", "kv", "Output side: flat or kv")
	inFile := flag.String("in", "-", "Flatfile input path, - for stdin")
	outFile := flag.String("out", "-", "Flatfile output path, - for stdout")

	configPath := flag.String("config", "", "YAML storage configuration file")
	dataDir := flag.String("data", "data", "Data directory for the KV store and module files")
	backend := flag.String("backend", "bolt", "KV backend: bolt, map or mem")
	dbFile := flag.String("dbfile", "netmush.kv", "KV store file name")

	withZone := flag.Bool("zone", true, "Carry zone fields in flatfile output")
	withLink := flag.Bool("link", true, "Carry link fields in flatfile output")
	withParent := flag.Bool("parent", true, "Carry parent fields in flatfile output")
	atrName := flag.Bool("atrname", false, "Route names through the attribute list")
	atrKey := flag.Bool("atrkey", false, "Route locks through the attribute list")
	atrMoney := flag.Bool("atrmoney", false, "Route pennies through the attribute list")
	outVersion := flag.Int("version", flatfile.OutputVersion, "Output dialect version")

	checkOnly := flag.Bool("C", false, "Check the database and report, write nothing")
	skipClean := flag.Bool("q", false, "Skip the attribute-number clean pass")

	doArchive := flag.Bool("archive", false, "Archive the data directory after a KV write")
	archiveDir := flag.String("archivedir", "", "Archive directory, default <data>/archive")
	restoreFrom := flag.String("restore", "", "Restore a .tar.gz archive into the data directory and exit")
	listArchives := flag.Bool("list", false, "List existing archives and exit")
	flag.Parse()

	cfg := kvdb.DefaultConfig()
	if *configPath != "" {
		loaded, err := kvdb.LoadConfig(*configPath)
		if err != nil {
			fatal(err)
		}
		cfg = loaded
	}
	if *dataDir != "data" || cfg.DataDir == "" {
		cfg.DataDir = *dataDir
	}
	if *backend != "bolt" || cfg.Backend == "" {
		cfg.Backend = *backend
	}
	if *dbFile != "netmush.kv" || cfg.DBFile == "" {
		cfg.DBFile = *dbFile
	}

	archives := *archiveDir
	if archives == "" {
		archives = filepath.Join(cfg.DataDir, "archive")
	}

	if *listArchives {
		infos, err := archive.List(archives)
		if err != nil {
			fatal(err)
		}
		for _, ai := range infos {
			fmt.Printf("%s  %10d  %s  %s (%d objects)\n",
				ai.Timestamp, ai.Size, ai.Filename, ai.DBName, ai.Objects)
		}
		return
	}

	if *restoreFrom != "" {
		res, err := archive.Restore(archive.RestoreParams{
			ArchivePath: *restoreFrom,
			DataDir:     cfg.DataDir,
			ConfigDest:  *configPath,
			Stdin:       os.Stdin,
			Stdout:      os.Stdout,
		})
		if err != nil {
			fatal(err)
		}
		for _, w := range res.Warnings {
			fmt.Fprintf(os.Stderr, "warning: %s\n", w)
		}
		fmt.Fprintf(os.Stderr, "restored %d files into %s\n", res.FilesRestored, cfg.DataDir)
		return
	}

	start := time.Now()
	db, err := readDatabase(*from, *inFile, cfg)
	if err != nil {
		fatal(err)
	}
	fmt.Fprintf(os.Stderr, "read %d objects, %d attribute definitions in %v\n",
		len(db.Objects), len(db.AttrDefs()), time.Since(start).Round(time.Millisecond))
	printSummary("input", db)

	if *checkOnly {
		v := validate.New(db)
		findings := v.Run()
		validate.Report(os.Stdout, findings)
		errs, warns := v.Summary()
		fmt.Fprintf(os.Stderr, "check complete: %d errors, %d warnings\n", errs, warns)
		if errs > 0 {
			os.Exit(1)
		}
		return
	}

	outFlags := flatfile.UnloadFlags
	if !*withZone {
		outFlags &^= flatfile.VZone
	}
	if !*withLink {
		outFlags &^= flatfile.VLink
	}
	if !*withParent {
		outFlags &^= flatfile.VParent
	}
	if *atrName {
		outFlags |= flatfile.VAtrName | flatfile.VGDBM
	}
	if *atrKey {
		outFlags |= flatfile.VAtrKey
	}
	if *atrMoney {
		outFlags |= flatfile.VAtrMoney
	}
	opts := flatfile.WriteOptions{
		Flags:   outFlags,
		Version: *outVersion,
		Clean:   !*skipClean,
	}

	if err := writeDatabase(*to, *outFile, cfg, db, opts); err != nil {
		fatal(err)
	}
	if *to == "flat" {
		fmt.Fprintf(os.Stderr, "wrote %s flatfile, flags %#x version %d\n",
			flatfile.FormatName(flatfile.FTinyMUSH), outFlags, *outVersion)
	} else {
		fmt.Fprintf(os.Stderr, "wrote KV store %s (%s backend)\n", cfg.Path(), cfg.Backend)
	}

	if *doArchive && *to == "kv" {
		path, err := archive.Create(archive.Params{
			DataDir:     cfg.DataDir,
			StoreFile:   cfg.DBFile,
			ConfigPath:  *configPath,
			ArchiveDir:  archives,
			DBName:      cfg.DBFile,
			ObjectCount: len(db.Objects),
		})
		if err != nil {
			fatal(err)
		}
		fmt.Fprintf(os.Stderr, "archived to %s\n", path)
	}
}

func readDatabase(from, inFile string, cfg *kvdb.Config) (*gamedb.Database, error) {
	switch from {
	case "flat":
		var r io.Reader = os.Stdin
		if inFile != "-" {
			f, err := os.Open(inFile)
			if err != nil {
				return nil, err
			}
			defer f.Close()
			r = f
		}
		return flatfile.Parse(r)

	case "kv":
		d, err := kvdb.Open(cfg)
		if err != nil {
			return nil, err
		}
		defer d.Close()
		registerModules(d)
		return d.Load(context.Background())

	default:
		return nil, fmt.Errorf("dbconvert: unknown input side %q", from)
	}
}

func writeDatabase(to, outFile string, cfg *kvdb.Config, db *gamedb.Database, opts flatfile.WriteOptions) error {
	switch to {
	case "flat":
		if outFile == "-" {
			return flatfile.Write(os.Stdout, db, opts)
		}
		return flatfile.Save(outFile, db, opts)

	case "kv":
		d, err := kvdb.Open(cfg)
		if err != nil {
			return err
		}
		defer d.Close()
		registerModules(d)

		bus := events.NewBus()
		bus.SubscribeGlobal(events.Func(func(ev events.Event) {
			switch ev.Type {
			case events.EvDumpDone:
				fmt.Fprintf(os.Stderr, "dump: %d objects in %v\n",
					ev.Objects, ev.Took.Round(time.Millisecond))
			case events.EvModuleDump:
				fmt.Fprintf(os.Stderr, "dump: module %s\n", ev.Module)
			}
		}))
		d.SetBus(bus)
		return d.Dump(context.Background(), db)

	default:
		return fmt.Errorf("dbconvert: unknown output side %q", to)
	}
}

// registerModules attaches the stock modules so their private
// flatfiles ride along with the core database.
func registerModules(d *kvdb.DB) {
	d.RegisterModule("comsys", &comsys.System{})
	d.RegisterModule("mail", mail.NewSystem())
}

func printSummary(side string, db *gamedb.Database) {
	typeCounts := make(map[gamedb.ObjectType]int)
	going := 0
	for _, obj := range db.Objects {
		typeCounts[obj.ObjType()]++
		if obj.IsGoing() {
			going++
		}
	}
	fmt.Fprintf(os.Stderr, "%s: %s, flags %#x, size %d, next attr %d, record players %d\n",
		side, flatfile.FormatName(db.Format), db.Flags, db.Size, db.NextAttr, db.RecordPlayers)
	fmt.Fprintf(os.Stderr, "%s: %d rooms, %d things, %d exits, %d players, %d going\n",
		side,
		typeCounts[gamedb.TypeRoom], typeCounts[gamedb.TypeThing],
		typeCounts[gamedb.TypeExit], typeCounts[gamedb.TypePlayer], going)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
	os.Exit(1)
}
