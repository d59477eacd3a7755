// Package storage owns everything written under the output directory.
//
// Layout of one content directory:
//
//	{output}/{id}_{title}/
//	    {id}.csv            dataset, one row per comment
//	    content_info.json   resolved metadata
//	    {id}.geojson        region overlay
//	    images/             comment pictures, "<uname>_<basename>"
//
// Writer implements the dataset contract: the first overwrite call for a
// path truncates and writes the header, later calls append, and rows with
// an empty author name are dropped. ImageStore writes pictures atomically
// through a temporary file and rename.
package storage
