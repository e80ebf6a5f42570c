// Package pipeline provides a framework for executing the steps of a
// cspgen run in sequence.
//
// A run crawls the site, writes the artifacts, optionally records the run in
// the history database and finally prints a summary. Each stage is
// implemented as a Step that receives the session and can modify it.
//
// Design decision: We use a pipeline pattern instead of direct function calls
// because:
// 1. It allows easy addition/removal of steps without modifying core logic
// 2. It provides consistent error handling and logging across steps
// 3. It lets the crawl be cancelled while later steps still run
package pipeline
