/*
Package rtgraph hosts a graph of audio nodes processed in a realtime audio
callback and controlled from a regular goroutine.

Concept

The program is split into two domains:

    control - the goroutine that owns the Context, may allocate and block;
    realtime - the audio callback driven by the backend, must not allocate,
        lock or block.

All communication between them goes through pre-allocated lock-free
rings: compiled schedules and events travel to the callback, faults and
log entries travel back. Shared heap data is wrapped into
collector.ArcGc handles, which are only torn down on the control side.

Nodes

A node type implements node.AudioNode. Adding a node constructs its
processor on the control goroutine and moves it into the callback:

    cx := rtgraph.New()
    id, err := rtgraph.AddNode(cx, &nodes.Tone{}, nil)
    err = cx.Connect(id, cx.GraphOutputNodeID(), rtgraph.Stereo, false)

Parameters

Parameter types implement param.Differ and param.Patcher. The control
side keeps the authoritative value, usually in a param.Memo, and sends
only the changed fields:

    memo := param.NewMemo(nodes.ToneParams{Frequency: 440})
    memo.Value.Frequency = 220
    err = rtgraph.SyncParams(cx, id, memo)

Patches are applied by the processor in the order they were queued.

Execution

Once the graph is built, a stream can be started with any backend:

    err = cx.StartStream(portaudio.Backend{}, backend.Config{})

Update must be called periodically. It reclaims released resources,
finalizes removed nodes and reports processor faults. If the stream
terminated by itself, Update returns an error matching
ErrStreamStoppedUnexpectedly until a new stream is started.
*/
package rtgraph
