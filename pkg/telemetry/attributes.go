package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Standard attribute keys.
const (
	// Harvest
	AttrHarvestAPI          = "harvest.api"
	AttrHarvestEndpoint     = "harvest.endpoint"
	AttrHarvestPartitionKey = "harvest.partition_key"
	AttrHarvestPages        = "harvest.pages"
	AttrHarvestRecords      = "harvest.records"

	// Bronze
	AttrBronzeBucket = "bronze.bucket"
	AttrBronzeKey    = "bronze.key"
	AttrBronzeBytes  = "bronze.bytes"

	// Silver
	AttrSilverTable = "silver.table"
	AttrSilverRows  = "silver.rows"

	// Gold
	AttrGoldNodeLabel    = "gold.node_label"
	AttrGoldRelationType = "gold.relation_type"

	// Scheduler / asset
	AttrAsset          = "asset.name"
	AttrRunID          = "run.id"
	AttrAssetStatus    = "asset.status"
	AttrAssetRetries   = "asset.retries"
	AttrValidationPassed = "validation.passed"
)

// HarvestAttributes returns attributes describing one endpoint fetch.
func HarvestAttributes(api, endpoint, partitionKey string, pages, records int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrHarvestAPI, api),
		attribute.String(AttrHarvestEndpoint, endpoint),
		attribute.String(AttrHarvestPartitionKey, partitionKey),
		attribute.Int(AttrHarvestPages, pages),
		attribute.Int(AttrHarvestRecords, records),
	}
}

// BronzeAttributes returns attributes describing one object store write.
func BronzeAttributes(bucket, key string, bytes int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrBronzeBucket, bucket),
		attribute.String(AttrBronzeKey, key),
		attribute.Int(AttrBronzeBytes, bytes),
	}
}

// SilverAttributes returns attributes describing one warehouse partition load.
func SilverAttributes(table string, rows int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrSilverTable, table),
		attribute.Int(AttrSilverRows, rows),
	}
}

// AssetAttributes returns attributes identifying a scheduler materialization run.
func AssetAttributes(asset, runID string, retries int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrAsset, asset),
		attribute.String(AttrRunID, runID),
		attribute.Int(AttrAssetRetries, retries),
	}
}
