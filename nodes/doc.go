// Package nodes provides nodes that can be added to the graph.
//
// Every node has a params struct that implements param.Differ, so its
// changes can be sent with rtgraph.SyncParams, and a pointer to it
// implements param.Patcher, so the processor can apply them.
package nodes
