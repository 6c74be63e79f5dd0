package bridgeprotocol

// MergePatch applies a JSON Merge Patch (RFC 7396) to target, returning the
// merged result. Neither argument is mutated; the result may share
// structure with patch when a subtree of the patch replaces one of
// target wholesale.
//
//   - If patch is not a JSON object, it replaces target entirely.
//   - If patch is an object, each of its keys is merged into target: a
//     null value deletes the key, anything else recurses, treating a
//     missing or non-object target[key] as an empty object.
func MergePatch(target, patch interface{}) interface{} {
	patchObj, ok := patch.(map[string]interface{})
	if !ok {
		return patch
	}

	targetObj, ok := target.(map[string]interface{})
	if !ok {
		targetObj = map[string]interface{}{}
	} else {
		merged := make(map[string]interface{}, len(targetObj))
		for k, v := range targetObj {
			merged[k] = v
		}
		targetObj = merged
	}

	for key, patchValue := range patchObj {
		if patchValue == nil {
			delete(targetObj, key)
			continue
		}
		targetObj[key] = MergePatch(targetObj[key], patchValue)
	}
	return targetObj
}
