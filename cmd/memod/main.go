// Command memod is a personal memo and daily-plan tool backed by an
// embedded SQLite store or a hosted cloud store, with optimistic
// mutations, undoable deletes and a local-to-cloud migration path.
package main

func main() {
	Execute()
}
