package repository

import (
	"fmt"

	"github.com/lib/pq"
)

func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

func intArray(ids []int) pq.Int64Array {
	arr := make(pq.Int64Array, len(ids))
	for i, id := range ids {
		arr[i] = int64(id)
	}
	return arr
}
