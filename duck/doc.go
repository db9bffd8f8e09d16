// Package duck synthesizes adapters that let code written against a shape
// (a struct of func fields embedding Shape) operate on values whose concrete
// type is only known at run time.
//
// An adapter is built once per (source type, shape) pair: every shape member
// is resolved against the source type, the resulting forwarding plan is kept
// in a process-wide cache, and each call to Entry.New binds the plan to one
// instance.
//
//	type Named struct {
//		duck.Shape
//		Name func() string `duck:"name:name;field;nonpublic"`
//	}
//
//	n, err := duck.Adapt[Named](duck.Default(), value)
//	if err == nil {
//		fmt.Println(n.Name())
//	}
package duck
