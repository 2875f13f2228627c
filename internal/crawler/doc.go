// Package crawler implements the link-graph crawl engine: URL normalization,
// admission filtering, the fetch pipeline, page extraction, and the traversal
// loop that turns a seed URL into a graph of nodes and edges.
package crawler
