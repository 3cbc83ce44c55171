package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

// Dumps the duochat store for troubleshooting: message rows, chat rows,
// profiles, whatever prefix is asked for. Values are JSON, so rows are
// pretty-printed as-is without knowing the exact schema version.
func main() {
	dbPath := flag.String("db", "/tmp/duochat", "Path to badger DB")
	prefix := flag.String("prefix", "msg:", "Prefix to scan")
	flag.Parse()

	db, err := badger.Open(badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Value"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	count := 0
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			key := string(item.Key())

			// Index entries point at row keys, nothing to decode there.
			if strings.HasPrefix(key, "msgid:") {
				continue
			}

			err := item.Value(func(v []byte) error {
				table.Append([]string{key, compactJSON(v)})
				count++
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal("Scan failed: ", err)
	}

	table.Render()
	color.Green.Printf("\n%d row(s) under prefix %q\n", count, *prefix)
}

func compactJSON(v []byte) string {
	var decoded map[string]any
	if err := json.Unmarshal(v, &decoded); err != nil {
		return string(v)
	}
	out, err := json.Marshal(decoded)
	if err != nil {
		return string(v)
	}
	return string(out)
}
