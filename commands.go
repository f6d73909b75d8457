package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/formationdesk/checkin/api"
	"github.com/formationdesk/checkin/fingerprint"
	"github.com/formationdesk/checkin/geo"
	"github.com/formationdesk/checkin/store"
	"github.com/formationdesk/checkin/submission"
)

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// reportFailure prints the error object the API would answer with, remediation included,
// and returns err for the exit status.
func reportFailure(err error) error {
	catalog, cerr := newCatalog()
	if cerr != nil {
		log.WithField("prefix", "cli").Warn(cerr)
	}

	_, resp := api.DescribeFailure(catalog, err, uiLanguage())
	enc := json.NewEncoder(os.Stderr)
	enc.SetIndent("", "  ")
	_ = enc.Encode(resp)
	return err
}

func newServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the kiosk HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if cmd.Flags().Changed("port") {
				viper.Set("server.port", port)
			}

			positioner, err := newPositioner()
			if err != nil {
				return err
			}
			catalog, err := newCatalog()
			if err != nil {
				return err
			}
			journal, err := openJournal(ctx)
			if err != nil {
				return err
			}
			defer journal.Close()

			server := api.NewServer(positioner, gateOptions(), fingerprint.New(newEnvironment()), newBackend(), journal, catalog)

			errCh := make(chan error, 1)
			go func() {
				addr := listenAddr()
				log.WithField("prefix", "init").Infof("Server is listening on %s", addr)
				errCh <- server.Run(addr)
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			log.Info("Server is preparing to shutdown")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Error("Server Shutdown:", err)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "Port to listen on, overrides server.port")
	return cmd
}

func newLocateCmd() *cobra.Command {
	var required float64
	cmd := &cobra.Command{
		Use:   "locate",
		Short: "Acquire a location through the accuracy gate",
		RunE: func(cmd *cobra.Command, args []string) error {
			positioner, err := newPositioner()
			if err != nil {
				return err
			}

			opts := []geo.Option{geo.WithOptions(gateOptions())}
			if cmd.Flags().Changed("required-accuracy") {
				opts = append(opts, geo.WithRequiredAccuracy(required))
			}

			reading, err := geo.AcquireLocation(cmd.Context(), positioner, opts...)
			if err != nil {
				return reportFailure(err)
			}
			return printJSON(reading)
		},
	}
	cmd.Flags().Float64Var(&required, "required-accuracy", geo.DefaultRequiredAccuracy, "Largest accepted accuracy radius in meters")
	return cmd
}

func newFingerprintCmd() *cobra.Command {
	var showSignals bool
	cmd := &cobra.Command{
		Use:   "fingerprint",
		Short: "Print the device digest",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := fingerprint.New(newEnvironment())

			digest, err := f.Digest(cmd.Context())
			if err != nil {
				return reportFailure(err)
			}

			out := map[string]interface{}{"device_hash": digest}
			if showSignals {
				s := f.Signals()
				canvas := s.Canvas
				if len(canvas) > 48 {
					canvas = canvas[:48] + "..."
				}
				out["signals"] = map[string]string{
					"user_agent":    s.UserAgent,
					"screen_width":  s.ScreenWidth,
					"screen_height": s.ScreenHeight,
					"time_zone":     s.TimeZone,
					"language":      s.Language,
					"canvas":        canvas,
				}
			}
			return printJSON(out)
		},
	}
	cmd.Flags().BoolVar(&showSignals, "signals", false, "Also print the signals the digest is computed over")
	return cmd
}

// withFlow runs fn with a submission flow wired from configuration.
func withFlow(ctx context.Context, fn func(*submission.Flow) (*submission.Receipt, error)) error {
	positioner, err := newPositioner()
	if err != nil {
		return err
	}
	journal, err := openJournal(ctx)
	if err != nil {
		return err
	}
	defer journal.Close()

	locator := submission.GateLocator{Positioner: positioner, Options: []geo.Option{geo.WithOptions(gateOptions())}}
	flow := submission.NewFlow(locator, fingerprint.New(newEnvironment()), newBackend(), journal)

	receipt, err := fn(flow)
	if err != nil {
		return reportFailure(err)
	}
	return printJSON(receipt)
}

func newAttendCmd() *cobra.Command {
	var form submission.AttendanceForm
	cmd := &cobra.Command{
		Use:   "attend",
		Short: "Mark attendance for an employee",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFlow(cmd.Context(), func(f *submission.Flow) (*submission.Receipt, error) {
				return f.MarkAttendance(cmd.Context(), form)
			})
		},
	}
	cmd.Flags().StringVarP(&form.EmployeeID, "employee", "e", "", "Employee ID")
	cmd.Flags().StringVarP(&form.Token, "token", "t", "", "Attendance token from the QR code")
	cmd.Flags().StringVarP(&form.FormationID, "formation", "f", "", "Formation ID from the QR code")
	return cmd
}

func newRegisterDeviceCmd() *cobra.Command {
	var form submission.DeviceForm
	cmd := &cobra.Command{
		Use:   "register-device",
		Short: "Register this device to an employee",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFlow(cmd.Context(), func(f *submission.Flow) (*submission.Receipt, error) {
				return f.RegisterDevice(cmd.Context(), form)
			})
		},
	}
	cmd.Flags().StringVarP(&form.EmployeeID, "employee", "e", "", "Employee ID")
	return cmd
}

func newVisitCmd() *cobra.Command {
	var form submission.VisitForm
	cmd := &cobra.Command{
		Use:   "visit",
		Short: "Submit a visit request",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFlow(cmd.Context(), func(f *submission.Flow) (*submission.Receipt, error) {
				return f.CreateVisit(cmd.Context(), form)
			})
		},
	}
	cmd.Flags().StringVar(&form.Name, "name", "", "Visitor name")
	cmd.Flags().StringVar(&form.Phone, "phone", "", "Visitor phone number")
	cmd.Flags().StringVar(&form.Purpose, "purpose", "", "Purpose of the visit")
	cmd.Flags().StringVar(&form.StaffToSee, "staff", "", "Staff member to see")
	cmd.Flags().StringVarP(&form.FormationID, "formation", "f", "", "Formation ID from the QR code")
	cmd.Flags().StringVarP(&form.SubUnitID, "sub-unit", "s", "", "Sub-unit ID from the QR code")
	return cmd
}

func newJournalCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "List recent submission attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			journal, err := openJournal(cmd.Context())
			if err != nil {
				return err
			}
			defer journal.Close()

			records, err := journal.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printJSON(records)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", store.DefaultRecentLimit, "Number of records to list")
	return cmd
}
