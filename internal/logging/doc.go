// Package logging holds the structured logging helpers used across mailreader.
//
// Everything logs through log/slog. This package fixes the attribute keys and
// keeps personal data out of the output:
//
//	logger := logging.WithOperation(slog.Default(), "gmail.search")
//	logger.Info("search finished",
//	    logging.QueryTerms(query),
//	    logging.Count(len(ids)))
//
// Mail addresses are hashed with UserHash, tokens are masked with SanitizeToken,
// and search queries are reduced to their operators with QueryTerms.
//
// In stdio mode stdout carries MCP frames, so loggers built with New must write
// to stderr.
package logging
