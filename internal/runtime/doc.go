// Package runtime wires configuration, logging, the checkpoint database and
// chunk repositories, and opens configured event streams.
//
// Example:
//
//	rt, _ := runtime.Open(runtime.Options{Config: cfg, Logger: logger})
//	defer rt.Close()
//	tail, _ := rt.OpenTail(runtime.TailOptions{Consumer: "ops"})
//	defer tail.Close()
//	tail.OnEvent(func(e *parser.Event) { fmt.Println(e.Name()) })
//	_ = tail.Start()
package runtime
