package main

import (
	"fmt"
	"os"

	"github.com/mitchellh/cli"
	"github.com/sirupsen/logrus"

	"github.com/mvarzin/chidb"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	c := cli.NewCLI("chidb", "0.1.0")
	c.Args = args

	log := logrus.NewEntry(logrus.StandardLogger())

	c.Commands = map[string]cli.CommandFactory{
		"open":   func() (cli.Command, error) { return &openCommand{log: log}, nil },
		"get":    func() (cli.Command, error) { return &getCommand{log: log}, nil },
		"put":    func() (cli.Command, error) { return &putCommand{log: log}, nil },
		"backup": func() (cli.Command, error) { return &backupCommand{log: log}, nil },
	}

	status, err := c.Run()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return status
}

type openCommand struct{ log *logrus.Entry }

func (c *openCommand) Help() string     { return "usage: chidb open FILE" }
func (c *openCommand) Synopsis() string { return "create or validate a chidb file" }
func (c *openCommand) Run(args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, c.Help())
		return 1
	}
	bt, err := chidb.OpenFile(args[0])
	if err != nil {
		c.log.WithError(err).Error("open failed")
		return 1
	}
	defer bt.Close()
	fmt.Printf("%s: ok\n", args[0])
	return 0
}

type getCommand struct{ log *logrus.Entry }

func (c *getCommand) Help() string     { return "usage: chidb get FILE ROOT_PAGE KEY" }
func (c *getCommand) Synopsis() string { return "look up a row by key" }
func (c *getCommand) Run(args []string) int {
	if len(args) != 3 {
		fmt.Fprintln(os.Stderr, c.Help())
		return 1
	}
	bt, err := chidb.OpenFile(args[0])
	if err != nil {
		c.log.WithError(err).Error("open failed")
		return 1
	}
	defer bt.Close()

	var root, key uint32
	if _, err := fmt.Sscanf(args[1], "%d", &root); err != nil {
		fmt.Fprintln(os.Stderr, "invalid root page:", args[1])
		return 1
	}
	if _, err := fmt.Sscanf(args[2], "%d", &key); err != nil {
		fmt.Fprintln(os.Stderr, "invalid key:", args[2])
		return 1
	}

	cell, err := bt.Find(root, key)
	if err != nil {
		c.log.WithError(err).Error("lookup failed")
		return 1
	}
	record, err := chidb.DecodeRecord(cell.TableLeaf.Data)
	if err != nil {
		c.log.WithError(err).Error("decode record failed")
		return 1
	}
	for _, v := range record.Values {
		switch v.Class {
		case chidb.ClassNull:
			fmt.Print("NULL\t")
		case chidb.ClassInteger:
			fmt.Printf("%d\t", v.Int)
		case chidb.ClassText:
			fmt.Printf("%q\t", v.Text)
		}
	}
	fmt.Println()
	return 0
}

type putCommand struct{ log *logrus.Entry }

func (c *putCommand) Help() string     { return "usage: chidb put FILE ROOT_PAGE KEY VALUE" }
func (c *putCommand) Synopsis() string { return "insert a single-column row by key" }
func (c *putCommand) Run(args []string) int {
	if len(args) != 4 {
		fmt.Fprintln(os.Stderr, c.Help())
		return 1
	}
	bt, err := chidb.OpenFile(args[0])
	if err != nil {
		c.log.WithError(err).Error("open failed")
		return 1
	}
	defer bt.Close()

	var root, key uint32
	if _, err := fmt.Sscanf(args[1], "%d", &root); err != nil {
		fmt.Fprintln(os.Stderr, "invalid root page:", args[1])
		return 1
	}
	if _, err := fmt.Sscanf(args[2], "%d", &key); err != nil {
		fmt.Fprintln(os.Stderr, "invalid key:", args[2])
		return 1
	}

	rec := &chidb.Record{Values: []chidb.Value{chidb.TextValue(args[3])}}
	if err := bt.InsertInTable(root, key, rec.Encode()); err != nil {
		c.log.WithError(err).Error("insert failed")
		return 1
	}
	return 0
}

type backupCommand struct{ log *logrus.Entry }

func (c *backupCommand) Help() string     { return "usage: chidb backup FILE DEST_DIR" }
func (c *backupCommand) Synopsis() string { return "copy a chidb file to a backup directory" }
func (c *backupCommand) Run(args []string) int {
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, c.Help())
		return 1
	}
	bt, err := chidb.OpenFile(args[0])
	if err != nil {
		c.log.WithError(err).Error("open failed")
		return 1
	}
	defer bt.Close()

	dst, err := bt.Backup(args[0], args[1])
	if err != nil {
		c.log.WithError(err).Error("backup failed")
		return 1
	}
	fmt.Println(dst)
	return 0
}
