// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package ctf reads traces in the Common Trace Format.

A CTF trace is a directory holding a metadata file, which describes
the layout of everything else in TSDL, and one or more stream files.
Each stream file is a sequence of packets; each packet starts with a
header and a context followed by a run of events.

Open maps the stream files and parses the metadata. A TraceReader
merges the events of every stream file into a single sequence ordered
by time:

	t, err := ctf.Open(dir)
	if err != nil {
		...
	}
	defer t.Close()
	ctx, err := t.Seek(math.MinInt64)
	if err != nil {
		...
	}
	for {
		ev, err := ctx.Next()
		if err == io.EOF {
			break
		}
		...
	}

Seeking by time in a large trace is made cheap by a checkpoint index,
built once with BuildIndex and stored with package index.
*/
package ctf
