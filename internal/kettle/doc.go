// Package kettle holds the kettle-side domain of the bridge: the Appliance
// capability, the shared SessionManager, and the FSR fill-level Classifier.
//
// The Bluetooth driver for the Fellow Stagg EKG+ lives in the stagg
// subpackage; anything that satisfies Appliance and Discoverer can stand in
// for it.
package kettle
