package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/WessleyAI/docqa/engine/domain"
	"github.com/WessleyAI/docqa/pkg/natsutil"
	"github.com/spf13/cobra"
)

func newRootCmd(a *app) *cobra.Command {
	var configPath, level string
	root := &cobra.Command{
		Use:          "ragctl",
		Short:        "Operate the document question-answering pipeline",
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.load(configPath, level)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (overrides DOCQA_CONFIG)")
	root.PersistentFlags().StringVar(&level, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		newPutCmd(a),
		newAskCmd(a),
		newReindexCmd(a),
		newEnsureCmd(a),
		newDLQCmd(a),
	)
	return root
}

func newPutCmd(a *app) *cobra.Command {
	var (
		name   string
		notify bool
	)
	cmd := &cobra.Command{
		Use:   "put <file>",
		Short: "Upload a document into the raw/ namespace",
		Long: `Uploads a local file to raw/<name> in the configured bucket.
Backends that report new objects trigger extraction on their own; pass
--notify to announce the object on the storage subject as well.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if name == "" {
				name = filepath.Base(args[0])
			}
			key := domain.RawPrefix + strings.TrimPrefix(name, domain.RawPrefix)

			store, err := a.blobStore()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			ct := mime.TypeByExtension(filepath.Ext(key))
			if ct == "" {
				ct = "application/octet-stream"
			}
			if err := store.Put(ctx, a.cfg.Storage.Bucket, key, data, ct); err != nil {
				return fmt.Errorf("upload %s: %w", key, err)
			}
			if notify {
				n := domain.Notification{Bucket: a.cfg.Storage.Bucket, Key: key, EventType: domain.EventObjectCreated}
				if err := a.announce(ctx, n); err != nil {
					return err
				}
			}
			cmd.Printf("uploaded %s/%s (%d bytes)\n", a.cfg.Storage.Bucket, key, len(data))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "object name under raw/ (default: file name)")
	cmd.Flags().BoolVar(&notify, "notify", false, "publish an object-created notification")
	return cmd
}

func newAskCmd(a *app) *cobra.Command {
	var (
		sessionID string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the indexed documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			ans, err := svc.Ask(cmd.Context(), domain.AskRequest{
				Question:  strings.Join(args, " "),
				SessionID: sessionID,
			})
			if err != nil {
				return err
			}
			if asJSON {
				data, err := json.MarshalIndent(domain.AskResponse{Answer: ans.Text, Sources: ans.Sources, SessionID: ans.SessionID}, "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(data))
				return nil
			}
			cmd.Println(ans.Text)
			if len(ans.Sources) > 0 {
				cmd.Println()
				cmd.Println("Sources:")
				for i, s := range ans.Sources {
					cmd.Printf("  [%d] %s\n", i+1, s.Source)
				}
			}
			cmd.Printf("\nsession: %s\n", ans.SessionID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "continue an existing conversation")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the response as JSON")
	return cmd
}

func newReindexCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex <key>...",
		Short: "Re-announce stored objects so the pipeline processes them again",
		Long: `Publishes an object-created notification for each key. A raw/ key is
extracted again; a trusted/ key is embedded and appended again.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, key := range args {
				if !domain.IsRaw(key) && !domain.IsTrusted(key) {
					return domain.NewValidationError("key", key, domain.ErrOutsideNamespace)
				}
			}
			for _, key := range args {
				n := domain.Notification{Bucket: a.cfg.Storage.Bucket, Key: key, EventType: domain.EventObjectCreated}
				if err := a.announce(cmd.Context(), n); err != nil {
					return err
				}
				cmd.Printf("announced %s/%s\n", n.Bucket, key)
			}
			return nil
		},
	}
}

func newEnsureCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ensure",
		Short: "Provision the vector collection",
		Long: `Creates the vector collection if it does not exist. Without a configured
dimension the embedding model is probed once to learn it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if a.cfg.Vector.Dimension == 0 {
				emb, _, err := a.models()
				if err != nil {
					return err
				}
				v, err := emb.Embed(ctx, "dimension probe")
				if err != nil {
					return fmt.Errorf("probe embedding dimension: %w", err)
				}
				if len(v) == 0 {
					return errors.New("probe embedding returned an empty vector")
				}
				a.cfg.Vector.Dimension = len(v)
			}
			coll, err := a.collection(ctx)
			if err != nil {
				return err
			}
			dim, err := coll.Dimension(ctx)
			if err != nil {
				return err
			}
			cmd.Printf("collection %s ready (%s, dimension %d)\n", a.cfg.Vector.Collection, a.cfg.Vector.Backend, dim)
			return nil
		},
	}
}

func newDLQCmd(a *app) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Print dead-lettered notifications as they arrive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			nc, err := a.conn()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			seen := 0
			sub, err := natsutil.Subscribe(nc, a.cfg.NATS.DLQSubject, func(_ context.Context, dl natsutil.DeadLetter) {
				if ctx.Err() != nil {
					return
				}
				data, err := json.Marshal(dl)
				if err != nil {
					return
				}
				cmd.Println(string(data))
				seen++
				if count > 0 && seen >= count {
					cancel()
				}
			})
			if err != nil {
				return fmt.Errorf("subscribe %s: %w", a.cfg.NATS.DLQSubject, err)
			}
			defer sub.Unsubscribe()

			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 0, "exit after this many messages (0 runs until interrupted)")
	return cmd
}
