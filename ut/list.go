package ut

// List is an intrusive doubly linked list. Nodes are embedded in the
// elements, so adding and removing never allocates.
type List[T any] struct {
	First *ListNode[T]
	Last  *ListNode[T]
	Len   int
}

// ListNode links an element into at most one List.
type ListNode[T any] struct {
	Prev *ListNode[T]
	Next *ListNode[T]
	Data T
	list *List[T]
}

// ListAddLast appends node to the end of the list.
func ListAddLast[T any](list *List[T], node *ListNode[T]) {
	if list == nil || node == nil {
		return
	}
	ListAddAfter(list, list.Last, node)
}

// ListAddFirst inserts node at the start of the list.
func ListAddFirst[T any](list *List[T], node *ListNode[T]) {
	ListAddAfter(list, nil, node)
}

// ListAddAfter adds node after prev (or at start if prev is nil).
func ListAddAfter[T any](list *List[T], prev, node *ListNode[T]) {
	if list == nil || node == nil || node.list != nil {
		return
	}
	node.list = list
	list.Len++
	if list.First == nil {
		node.Prev = nil
		node.Next = nil
		list.First = node
		list.Last = node
		return
	}
	if prev == nil {
		node.Prev = nil
		node.Next = list.First
		list.First.Prev = node
		list.First = node
		return
	}
	node.Prev = prev
	node.Next = prev.Next
	prev.Next = node
	if node.Next != nil {
		node.Next.Prev = node
	} else {
		list.Last = node
	}
}

// ListRemove removes node from the list it belongs to.
func ListRemove[T any](list *List[T], node *ListNode[T]) {
	if list == nil || node == nil || node.list != list {
		return
	}
	if node.Prev != nil {
		node.Prev.Next = node.Next
	} else {
		list.First = node.Next
	}
	if node.Next != nil {
		node.Next.Prev = node.Prev
	} else {
		list.Last = node.Prev
	}
	node.Prev = nil
	node.Next = nil
	node.list = nil
	list.Len--
}

// ListPopFirst unlinks and returns the first node, or nil.
func ListPopFirst[T any](list *List[T]) *ListNode[T] {
	if list == nil || list.First == nil {
		return nil
	}
	node := list.First
	ListRemove(list, node)
	return node
}

// ListFree detaches every node and clears the list.
func ListFree[T any](list *List[T]) {
	if list == nil {
		return
	}
	for node := list.First; node != nil; {
		next := node.Next
		node.Prev = nil
		node.Next = nil
		node.list = nil
		node = next
	}
	list.First = nil
	list.Last = nil
	list.Len = 0
}

// InList reports whether node is linked into list.
func (node *ListNode[T]) InList(list *List[T]) bool {
	return node != nil && list != nil && node.list == list
}

// Linked reports whether node is linked into any list.
func (node *ListNode[T]) Linked() bool {
	return node != nil && node.list != nil
}
