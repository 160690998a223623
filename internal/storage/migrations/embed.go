// Package migrations embeds the trade-history schema.
package migrations

import _ "embed"

// TradesSchema is the DDL for the trades table.
//
//go:embed trades.sql
var TradesSchema string
