package trigger

import "strconv"

// Flatten returns every node of a decoded payload keyed by its dotted path,
// so govaluate parameters can address any depth. Objects and arrays are kept
// under their own path as well as expanded: `{"a": {"b": 1}}` yields both
// "a" (the object) and "a.b". Array elements are keyed "key[i]" and the
// whole array is also stored under "key[]".
func Flatten(data map[string]interface{}) map[string]interface{} {
	flat := make(map[string]interface{}, len(data))
	for key, value := range data {
		addNode(flat, key, value)
	}
	return flat
}

func addNode(flat map[string]interface{}, path string, value interface{}) {
	flat[path] = value
	switch node := value.(type) {
	case map[string]interface{}:
		for key, child := range node {
			addNode(flat, path+"."+key, child)
		}
	case []interface{}:
		flat[path+"[]"] = node
		for i, child := range node {
			addNode(flat, path+"["+strconv.Itoa(i)+"]", child)
		}
	}
}
