package vm

import "github.com/progalt/solis/pkg/value"

// reallocate is the single allocator hook every heap growth flows through
// (§4.4). It updates the nominal byte count and triggers a collection
// either unconditionally (stress mode) or once the count crosses nextGC.
func (vm *VM) reallocate(oldSize, newSize int64) {
	vm.allocatedBytes += newSize - oldSize
	if newSize > oldSize {
		if vm.stressGC {
			vm.collectGarbage()
			return
		}
		if vm.allocatedBytes > vm.nextGC {
			vm.collectGarbage()
		}
	}
}

// collectGarbage runs one full mark-sweep cycle: mark roots, drain the
// grey worklist, drop unmarked interned strings (the weak pass), sweep the
// allocation list, then reschedule the next collection.
func (vm *VM) collectGarbage() {
	vm.markRoots()
	vm.traceReferences()
	vm.strings.DeleteUnmarked()
	vm.sweep()
	vm.nextGC = int64(float64(vm.allocatedBytes) * vm.growthFactor)
}

func (vm *VM) markValue(v value.Value) {
	if v.IsObj() {
		vm.markObject(v.AsObj())
	}
}

func (vm *VM) markObject(obj value.Object) {
	if obj == nil {
		return
	}
	h := obj.Header()
	if h.Marked {
		return
	}
	h.Marked = true
	if h.Class != nil {
		vm.markObject(h.Class)
	}
	vm.grayStack = append(vm.grayStack, obj)
}

// markRoots marks the value stack, every live call frame's closure, the
// open-upvalue list, the current module (closure + globals), the VM's
// cached built-in classes, and the compiler's in-progress Function chain
// (§4.4 Roots) — the strings a single-pass compile interns into a chunk's
// constant pool before that chunk is wrapped in a Closure and linked into
// any frame are otherwise reachable only from compiler state the
// collector never scans.
func (vm *VM) markRoots() {
	for i := 0; i < vm.stackTop; i++ {
		vm.markValue(vm.stack[i])
	}
	for i := 0; i < vm.frameCount; i++ {
		vm.markObject(vm.frames[i].closure)
	}
	for uv := vm.openUpvalues; uv != nil; uv = uv.OpenNext {
		vm.markObject(uv)
	}
	if vm.module != nil {
		vm.markObject(vm.module)
	}
	for _, c := range [...]*value.ObjClass{vm.numberClass, vm.stringClass, vm.boolClass, vm.listClass, vm.nullClass} {
		vm.markObject(c)
	}
	for _, fn := range vm.compileRoots {
		vm.markObject(fn)
	}
}

// traceReferences drains the grey worklist, blackening each object by
// marking its outgoing references via MarkChildren.
func (vm *VM) traceReferences() {
	for len(vm.grayStack) > 0 {
		obj := vm.grayStack[len(vm.grayStack)-1]
		vm.grayStack = vm.grayStack[:len(vm.grayStack)-1]
		obj.MarkChildren(vm.markValue)
	}
}

// sweep walks the intrusive allocation list, freeing every object whose
// mark bit is clear and clearing the bit on survivors for the next cycle.
func (vm *VM) sweep() {
	var prev value.Object
	obj := vm.objects
	for obj != nil {
		h := obj.Header()
		if h.Marked {
			h.Marked = false
			prev = obj
			obj = h.Next
			continue
		}
		unreached := obj
		obj = h.Next
		if prev != nil {
			prev.Header().Next = obj
		} else {
			vm.objects = obj
		}
		vm.freeObject(unreached)
	}
}

// freeObject runs any host cleanup a Userdata carries, then drops the
// nominal size it contributed to allocatedBytes. Go's own collector
// reclaims the memory once nothing references the Go value anymore; this
// bookkeeping only drives the *decision* of when to run the next cycle.
func (vm *VM) freeObject(obj value.Object) {
	if ud, ok := obj.(*value.ObjUserdata); ok && ud.Cleanup != nil {
		ud.Cleanup(ud.Data)
	}
	vm.allocatedBytes -= approxObjectSize(obj)
}

func approxObjectSize(obj value.Object) int64 {
	switch o := obj.(type) {
	case *value.ObjString:
		return int64(len(o.Chars)) + 40
	case *value.ObjList:
		return int64(len(o.Elements))*24 + 48
	case *value.ObjClosure:
		return int64(len(o.Upvalues))*8 + 48
	case *value.ObjClass:
		return 96
	default:
		return 48
	}
}
