// Command loomd is loom's terminal harness: it drives a local language
// model through the Planner/Questioner/Tinkerer/Judge orchestration loop
// against a git-backed task store.
package main

func main() {
	Execute()
}
