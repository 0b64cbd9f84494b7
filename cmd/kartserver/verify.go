package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/kartsync/kartsync/internal/collision"
	"github.com/kartsync/kartsync/internal/config"
	"github.com/kartsync/kartsync/internal/database"
	"github.com/kartsync/kartsync/internal/verify"
)

var errVerifyUsage = errors.New("usage: kartserver verify <sqlite-file> [session-id]")

// runVerify replays a recorded session and prints one line per vehicle.
// The latest session in the file is used when no id is given.
func runVerify(args []string, out io.Writer) error {
	if len(args) == 0 {
		return errVerifyUsage
	}
	path := args[0]
	sessionID := ""
	if len(args) > 1 {
		sessionID = args[1]
	}

	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("opening recording: %w", err)
	}
	db, err := database.GetSqliteDB(path)
	if err != nil {
		return fmt.Errorf("opening recording: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	defer func() { _ = sqlDB.Close() }()

	rec, err := database.LoadSession(db, sessionID)
	if err != nil {
		return err
	}

	report, err := verify.Replay(rec, collision.FromConfig(config.GetArenaConfig()), 0)
	fmt.Fprintf(out, "Session %s (%s), %d vehicles\n", rec.Session.ID, rec.Session.Name, len(rec.Vehicles))
	for _, v := range report.Vehicles {
		fmt.Fprintf(out, "  %s %-16s moves=%d rejected=%d checked=%d mismatches=%d maxDeviation=%.3g path=%.1f\n",
			v.VehicleID, v.Name, v.Moves, v.Rejected, v.Checked, v.Mismatches, v.MaxDeviation, v.PathLength)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "OK")
	return nil
}
