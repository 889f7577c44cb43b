/*
Copyright 2023-2024 EscherCloud.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package get

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
)

// table renders aligned column output on stdout.
type table struct {
	writer *tabwriter.Writer
}

func newTable(headers ...string) *table {
	writer := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)

	fmt.Fprintln(writer, strings.Join(headers, "\t"))

	return &table{
		writer: writer,
	}
}

func (t *table) row(columns ...string) {
	fmt.Fprintln(t.writer, strings.Join(columns, "\t"))
}

func (t *table) flush() error {
	return t.writer.Flush()
}
