package queue

// lane is the pending FIFO of one (subdomain, module, queueName) triple.
//
// A lane is only touched with the client mutex held. running is true
// while a worker goroutine owns the lane; at most one worker exists per
// lane, which is what serializes its tasks.
type lane struct {
	key     string
	tasks   []Task
	running bool
}

func newLane(key string) *lane {
	return &lane{key: key, tasks: make([]Task, 0, 8)}
}

func (l *lane) push(t Task) {
	l.tasks = append(l.tasks, t)
}

// pop removes the front task. Returns false when the lane is empty.
func (l *lane) pop() (Task, bool) {
	if len(l.tasks) == 0 {
		return Task{}, false
	}
	t := l.tasks[0]

	// Clear the slot so Data can be collected.
	l.tasks[0] = Task{}
	if len(l.tasks) == 1 {
		l.tasks = l.tasks[:0]
	} else {
		l.tasks = l.tasks[1:]
	}
	return t, true
}

func (l *lane) len() int {
	return len(l.tasks)
}
