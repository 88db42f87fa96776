package joins

// unionFind is a disjoint-set over table names. find compresses paths;
// union keeps the lexically smaller root so grouping is deterministic
// regardless of union order.
type unionFind struct {
	parent map[string]string
}

func newUnionFind(items []string) *unionFind {
	parent := make(map[string]string, len(items))
	for _, it := range items {
		parent[it] = it
	}
	return &unionFind{parent: parent}
}

func (u *unionFind) find(item string) string {
	root := item
	for u.parent[root] != root {
		root = u.parent[root]
	}
	for u.parent[item] != root {
		u.parent[item], item = root, u.parent[item]
	}
	return root
}

func (u *unionFind) union(a, b string) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if rb < ra {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
}
