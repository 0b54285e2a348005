// Command syncored runs one replica of a synchronized document
// repository, persisting documents to a local bbolt file and exchanging
// them over TCP with a fixed set of known peers.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	survey "github.com/AlecAivazis/survey/v2"
	"github.com/urfave/cli/v2"

	"github.com/stitchsync/syncore/pkg/adapter/network"
	"github.com/stitchsync/syncore/pkg/adapter/storage"
	"github.com/stitchsync/syncore/pkg/crdt"
	"github.com/stitchsync/syncore/pkg/crdt/fakedoc"
	"github.com/stitchsync/syncore/pkg/definition"
	"github.com/stitchsync/syncore/pkg/syncore"
	"github.com/stitchsync/syncore/pkg/types"
)

func main() {
	app := &cli.App{
		Name:  "syncored",
		Usage: "run or inspect a synchronized document repository replica",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "data", Value: "syncore.db", Usage: "path to the local bbolt store"},
		},
		Commands: []*cli.Command{
			serveCommand(),
			docsCommand(),
			peersCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "syncored:", err)
		os.Exit(1)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "start this replica, listening for and dialing peers",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Value: ":4242", Usage: "address to accept peer connections on"},
			&cli.StringSliceFlag{Name: "peer", Usage: "address of a known peer to dial (repeatable)"},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	dataPath := c.String("data")

	identity, err := storage.LoadOrCreateIdentity(dataPath, promptDisplayName)
	if err != nil {
		return fmt.Errorf("loading identity: %w", err)
	}

	config := definition.DefaultConfiguration(identity.Name)
	log := config.Logger

	newDoc := func(types.DocumentId) crdt.Document { return fakedoc.New(string(identity.PeerId)) }

	store, err := storage.Open(dataPath, newDoc, config.CompactionThresholdBytes, "storage-local", log)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}

	listener := network.NewListener("network-listener", c.String("listen"), log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := syncore.Options{
		Identity:    identity,
		Config:      config,
		NewDocument: newDoc,
	}
	dialer := network.NewDialer("network-dialer", c.StringSlice("peer"), 5*time.Second, log)
	opts.Adapters = append(opts.Adapters, store, listener, dialer)

	repo, err := syncore.New(ctx, opts)
	if err != nil {
		return fmt.Errorf("starting repo: %w", err)
	}
	defer repo.Close()

	log.Infof("serving as %s (%s), listening on %s", identity.Name, identity.PeerId, listener.LocalAddress())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	<-sigCh
	log.Infof("shutting down")
	return nil
}

func docsCommand() *cli.Command {
	return &cli.Command{
		Name:  "docs",
		Usage: "list documents persisted in the local store",
		Action: func(c *cli.Context) error {
			ids, err := storage.ListDocuments(c.String("data"))
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Println("no documents stored")
				return nil
			}
			for _, id := range ids {
				fmt.Println(id)
			}
			return nil
		},
	}
}

func peersCommand() *cli.Command {
	return &cli.Command{
		Name:  "peers",
		Usage: "print this replica's own identity",
		Action: func(c *cli.Context) error {
			identity, err := storage.LoadOrCreateIdentity(c.String("data"), promptDisplayName)
			if err != nil {
				return err
			}
			fmt.Printf("%s (%s)\n", identity.Name, identity.PeerId)
			fmt.Println("remote peer state is in-memory only and is visible from a running `serve` process, not from this command")
			return nil
		},
	}
}

func promptDisplayName() (string, error) {
	var name string
	prompt := &survey.Input{Message: "Display name for this replica:"}
	if err := survey.AskOne(prompt, &name, survey.WithValidator(survey.Required)); err != nil {
		return "", err
	}
	return name, nil
}

