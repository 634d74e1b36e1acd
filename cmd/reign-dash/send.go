package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"reign-dash/internal/correlator"
	"reign-dash/internal/protocol"
	"reign-dash/internal/transport"

	"github.com/spf13/cobra"
)

func sendCmd(f *flags) *cobra.Command {
	var timeout time.Duration
	var follow bool

	cmd := &cobra.Command{
		Use:   "send <request>",
		Short: "Send one request and print the backend's answer",
		Long: `Send one request such as "presence:/" or "metrics:/prod/api > 2" and
print the response that carries its id. Without an explicit "> id" the id is
taken from a fresh sequence starting at 0. With --follow, pushed events are
printed until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*f)
			if err != nil {
				return err
			}
			configureLogging(cfg.LogLevel)

			ctx := cmd.Context()
			if !follow {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			tr := transport.New(cfg.BackendURI, transport.Options{
				HandshakeTimeout: cfg.HandshakeTimeout,
				WriteTimeout:     cfg.WriteTimeout,
			})
			defer tr.Shutdown()

			return sendAndPrint(ctx, tr, protocol.NewClassifier(cfg.Classifier), args[0], follow, cmd.OutOrStdout())
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "How long to wait for the response")
	cmd.Flags().BoolVar(&follow, "follow", false, "Keep printing pushed events after the response")
	return cmd
}

// sendAndPrint sends text over tr and writes the raw response frame with the
// matching id to out.
func sendAndPrint(ctx context.Context, tr *transport.Transport, classifier protocol.Classifier, text string, follow bool, out io.Writer) error {
	corr := correlator.New(tr, &protocol.Sequence{}, classifier, nil)
	id, err := corr.SendText(text)
	if err != nil {
		return fmt.Errorf("send %q: %w", text, err)
	}

	answered := false
	for {
		select {
		case <-ctx.Done():
			if answered {
				return nil
			}
			return fmt.Errorf("no response for id %d: %w", id, ctx.Err())

		case ev := <-tr.Events():
			switch ev.Kind {
			case transport.EventOpen:
				for _, queued := range tr.TakePending() {
					if err := tr.Send(queued); err != nil {
						return err
					}
				}

			case transport.EventMessage:
				msg, err := protocol.Decode(ev.Data, classifier)
				if err != nil {
					return err
				}
				switch {
				case msg.Kind == protocol.KindResponse && msg.Response.ID == id:
					fmt.Fprintln(out, ev.Data)
					if !msg.Response.OK() {
						return &correlator.StatusError{ID: id, Status: msg.Response.Status, Comment: msg.Response.Comment}
					}
					answered = true
					if !follow {
						return nil
					}
				case follow && msg.Kind == protocol.KindEvent:
					fmt.Fprintln(out, ev.Data)
				}

			case transport.EventError:
				return ev.Err

			case transport.EventClose:
				if answered {
					return nil
				}
				return errors.New("connection closed before a response arrived")
			}
		}
	}
}
