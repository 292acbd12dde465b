// Package log captures machine-readable events from relay links and
// subscription managers.
//
// It is separate from operational logging, which uses log/slog. A Logger
// receives Events: raw and decoded JSON-RPC traffic, websocket control
// frames, link and manager state changes, and subscription lifecycle steps.
//
//	file, err := log.NewFileLogger("/var/log/relaysub/client.rlog")
//	if err != nil {
//	    return err
//	}
//	defer file.Close()
//	cfg.EventLogger = log.NewMultiLogger(file, log.NewSlogAdapter(slog.Default()))
//
// # File format
//
// A log file is a CBOR sequence: one Header record (magic "relaysub-events"
// and a format version) followed by Events with integer map keys. Reader
// validates the header and streams events through an optional Filter.
package log
